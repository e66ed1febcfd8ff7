// Package server assembles and runs the ledger server: database, policy
// validator, services, and the AMQP command/notification surface, with
// graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aturkov/custodykeeper/internal/logging"
	"github.com/aturkov/custodykeeper/internal/server/config"
	"github.com/aturkov/custodykeeper/internal/server/notifications"
	"github.com/aturkov/custodykeeper/internal/server/queues"
	"github.com/aturkov/custodykeeper/internal/server/repositories/repomanager"
	"github.com/aturkov/custodykeeper/internal/server/services"
)

// App owns every long-lived component of the server process.
type App struct {
	config *config.Config
	logger logging.Logger

	db       *sql.DB
	amqpConn *amqp.Connection
	notifier notifications.Notifier

	ledger       *services.LedgerService
	policy       *services.PolicyValidator
	custody      *services.CustodyService
	verification *services.VerificationService
	attestation  *services.AttestationService
	consumer     *queues.Consumer
}

// NewApp opens the database, runs migrations, connects the broker when one
// is configured, and wires the services. The policy validator replays the
// stored custody log so its runtime state survives restarts.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	app.db = db

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	// With no broker configured the notifications go to the log and the
	// command consumer stays off; the services remain fully usable.
	app.notifier = notifications.NewLogNotifier(logger)
	var channel *amqp.Channel
	if cfg.AMQPURL != "" {
		conn, err := queues.ConnectWithRetry(ctx, cfg.AMQPURL, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.amqpConn = conn

		channel, err = conn.Channel()
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("amqp channel error: %w", err)
		}
		if err := queues.DeclareTopology(channel, cfg.AMQPExchange, cfg.CommandQueue); err != nil {
			app.Close()
			return nil, err
		}
		app.notifier = notifications.NewAMQPNotifierFromChannel(channel, cfg.AMQPExchange)
	}

	app.ledger = services.NewLedgerService(db, repos, app.notifier, logger)
	app.policy = services.NewPolicyValidator(services.PolicyConfig{
		RequiredOrder:     cfg.RequiredOrder,
		AllowedSkips:      cfg.AllowedSkips,
		MaxAccessDuration: cfg.MaxAccessDuration,
		NoParallelAccess:  cfg.NoParallelAccess,
	})
	app.custody = services.NewCustodyService(app.ledger, app.policy, logger)
	app.verification = services.NewVerificationService(app.ledger)
	app.attestation = services.NewAttestationService(db, repos, app.notifier, logger)

	if err := app.policy.RestoreAll(ctx, app.ledger); err != nil {
		app.Close()
		return nil, fmt.Errorf("policy state restore error: %w", err)
	}

	if channel != nil {
		app.consumer = queues.NewConsumer(channel,
			cfg.AMQPExchange, cfg.CommandQueue, cfg.ResultRoutingKey,
			app.ledger, app.custody, app.verification, app.attestation, logger)
	}

	return app, nil
}

func (app *App) initSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancel()
	}()
}

// Run blocks until the context is cancelled or a fatal component error
// stops the process.
func (app *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.logger.Info(ctx, "starting custodykeeper server")

	app.initSignalHandler(cancel)

	var wg sync.WaitGroup

	if app.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.consumer.Run(ctx); err != nil && ctx.Err() == nil {
				app.logger.Error(ctx, "command consumer stopped", "error", err.Error())
				cancel()
			}
		}()
	} else {
		app.logger.Warn(ctx, "no broker configured, command consumer disabled")
		<-ctx.Done()
	}

	wg.Wait()
	app.logger.Info(ctx, "server stopped")
}

// Close releases the broker connection and the database pool.
func (app *App) Close() {
	if closer, ok := app.notifier.(interface{ Close() }); ok {
		closer.Close()
	}
	if app.amqpConn != nil {
		app.amqpConn.Close()
	}
	if app.db != nil {
		app.db.Close()
	}
}
