package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aturkov/custodykeeper/internal/fingerprint"
	"github.com/aturkov/custodykeeper/internal/logging"
	"github.com/aturkov/custodykeeper/internal/server/models"
)

// LedgerOps is the slice of the ledger store the consumer dispatches to.
type LedgerOps interface {
	RegisterEvidence(ctx context.Context, fp fingerprint.Fingerprint, caseID, collector string) (int64, error)
}

// CustodyOps validates and appends custody events.
type CustodyOps interface {
	LogAction(ctx context.Context, evidenceID int64, action, handler string, details map[string]any) (int64, error)
}

// VerificationOps re-checks evidence integrity.
type VerificationOps interface {
	VerifyBytes(ctx context.Context, evidenceID int64, raw []byte, verifier string) (*models.VerificationOutcome, error)
	VerifyFingerprint(ctx context.Context, evidenceID int64, fp fingerprint.Fingerprint, verifier string) (*models.VerificationOutcome, error)
}

// AttestationOps manages the verifier registry and attestations.
type AttestationOps interface {
	RegisterVerifier(ctx context.Context, identity string) error
	Attest(ctx context.Context, evidenceID int64, verifier string, verified bool) (int64, error)
}

// Consumer reads commands from the command queue, dispatches them to the
// services, and publishes one Result per command to the result routing key.
type Consumer struct {
	channel      *amqp.Channel
	exchange     string
	commandQueue string
	resultKey    string

	ledger       LedgerOps
	custody      CustodyOps
	verification VerificationOps
	attestation  AttestationOps

	logger logging.Logger
}

// NewConsumer constructs the command consumer over an open channel.
func NewConsumer(ch *amqp.Channel, exchange, commandQueue, resultKey string,
	ledger LedgerOps, custody CustodyOps, verification VerificationOps, attestation AttestationOps,
	logger logging.Logger) *Consumer {
	return &Consumer{
		channel:      ch,
		exchange:     exchange,
		commandQueue: commandQueue,
		resultKey:    resultKey,
		ledger:       ledger,
		custody:      custody,
		verification: verification,
		attestation:  attestation,
		logger:       logger.With("module", "command_consumer"),
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
// Deliveries are acked after the result is published; a malformed message is
// still acked, with the decode error reported in its result.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(
		c.commandQueue,
		consumerTag,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info(ctx, "waiting for commands", "queue", c.commandQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			result := c.Handle(ctx, d.Body)
			if err := c.publishResult(ctx, result); err != nil {
				c.logger.Error(ctx, "failed to publish result",
					"command_id", result.CommandID, "error", err.Error())
			}
			if err := d.Ack(false); err != nil {
				c.logger.Error(ctx, "ack failed", "command_id", result.CommandID, "error", err.Error())
			}
		}
	}
}

// Handle decodes and dispatches one command body. Errors never escape: every
// outcome, a rejected command included, becomes a Result.
func (c *Consumer) Handle(ctx context.Context, body []byte) Result {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return Result{OK: false, Error: "decode envelope: " + err.Error()}
	}

	result := c.dispatch(ctx, cmd)
	result.CommandID = cmd.ID
	result.Op = cmd.Op

	if result.OK {
		c.logger.Info(ctx, "command processed", "command_id", cmd.ID, "op", cmd.Op)
	} else {
		c.logger.Warn(ctx, "command rejected", "command_id", cmd.ID, "op", cmd.Op, "error", result.Error)
	}
	return result
}

func (c *Consumer) dispatch(ctx context.Context, cmd Command) Result {
	switch cmd.Op {
	case OpRegister:
		return c.handleRegister(ctx, cmd.Body)
	case OpLogAction:
		return c.handleLogAction(ctx, cmd.Body)
	case OpVerify:
		return c.handleVerify(ctx, cmd.Body)
	case OpRegisterVerifier:
		return c.handleRegisterVerifier(ctx, cmd.Body)
	case OpAttest:
		return c.handleAttest(ctx, cmd.Body)
	default:
		return failure(fmt.Errorf("unknown op %q", cmd.Op))
	}
}

func (c *Consumer) handleRegister(ctx context.Context, body []byte) Result {
	var req RegisterCommand
	if err := json.Unmarshal(body, &req); err != nil {
		return failure(fmt.Errorf("decode register: %w", err))
	}

	fp, err := resolveFingerprint(req.Fingerprint, req.Content)
	if err != nil {
		return failure(err)
	}
	id, err := c.ledger.RegisterEvidence(ctx, fp, req.CaseID, req.Collector)
	if err != nil {
		return failure(err)
	}
	return Result{OK: true, EvidenceID: id}
}

func (c *Consumer) handleLogAction(ctx context.Context, body []byte) Result {
	var req LogActionCommand
	if err := json.Unmarshal(body, &req); err != nil {
		return failure(fmt.Errorf("decode log_action: %w", err))
	}

	index, err := c.custody.LogAction(ctx, req.EvidenceID, req.Action, req.Handler, req.Details)
	if err != nil {
		return failure(err)
	}
	return Result{OK: true, EvidenceID: req.EvidenceID, Index: index}
}

func (c *Consumer) handleVerify(ctx context.Context, body []byte) Result {
	var req VerifyCommand
	if err := json.Unmarshal(body, &req); err != nil {
		return failure(fmt.Errorf("decode verify: %w", err))
	}

	var outcome *models.VerificationOutcome
	var err error
	if req.Fingerprint != "" {
		var fp fingerprint.Fingerprint
		if fp, err = fingerprint.Parse(req.Fingerprint); err != nil {
			return failure(err)
		}
		outcome, err = c.verification.VerifyFingerprint(ctx, req.EvidenceID, fp, req.Verifier)
	} else {
		outcome, err = c.verification.VerifyBytes(ctx, req.EvidenceID, req.Content, req.Verifier)
	}
	if err != nil {
		return failure(err)
	}
	return Result{OK: true, EvidenceID: req.EvidenceID, Passed: &outcome.Passed}
}

func (c *Consumer) handleRegisterVerifier(ctx context.Context, body []byte) Result {
	var req RegisterVerifierCommand
	if err := json.Unmarshal(body, &req); err != nil {
		return failure(fmt.Errorf("decode register_verifier: %w", err))
	}

	if err := c.attestation.RegisterVerifier(ctx, req.Identity); err != nil {
		return failure(err)
	}
	return Result{OK: true}
}

func (c *Consumer) handleAttest(ctx context.Context, body []byte) Result {
	var req AttestCommand
	if err := json.Unmarshal(body, &req); err != nil {
		return failure(fmt.Errorf("decode attest: %w", err))
	}

	index, err := c.attestation.Attest(ctx, req.EvidenceID, req.Verifier, req.Verified)
	if err != nil {
		return failure(err)
	}
	return Result{OK: true, EvidenceID: req.EvidenceID, Index: index}
}

func (c *Consumer) publishResult(ctx context.Context, result Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return c.channel.PublishWithContext(ctx,
		c.exchange,
		c.resultKey,
		false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: result.CommandID,
			Body:          body,
			Timestamp:     time.Now(),
			DeliveryMode:  amqp.Persistent,
		},
	)
}

func resolveFingerprint(hexFP string, content []byte) (fingerprint.Fingerprint, error) {
	if hexFP != "" {
		return fingerprint.Parse(hexFP)
	}
	return fingerprint.Digest(content)
}

func failure(err error) Result {
	return Result{OK: false, Error: err.Error()}
}
