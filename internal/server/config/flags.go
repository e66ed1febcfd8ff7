package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/aturkov/custodykeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-m string   AMQP broker URL ("" disables the AMQP surface)
//	-e string   AMQP exchange name
//	-q string   command queue name
//	-r string   result routing key
//	-o string   required custody order, comma-separated action names
//	-k string   allowed skips, comma-separated action names
//	-x int      max access duration, hours
//	-p bool     forbid parallel access
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-m", "-e", "-q", "-r", "-o", "-k", "-x", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AMQPURL, "m", config.AMQPURL, "AMQP broker URL")
	fs.StringVar(&config.AMQPExchange, "e", config.AMQPExchange, "AMQP exchange")
	fs.StringVar(&config.CommandQueue, "q", config.CommandQueue, "command queue name")
	fs.StringVar(&config.ResultRoutingKey, "r", config.ResultRoutingKey, "result routing key")

	requiredOrder := fs.String("o", strings.Join(config.RequiredOrder, ","), "required custody order (comma-separated)")
	allowedSkips := fs.String("k", strings.Join(config.AllowedSkips, ","), "allowed skips (comma-separated)")
	maxAccessHours := fs.Int("x", int(config.MaxAccessDuration.Hours()), "max access duration (in hours)")

	fs.BoolVar(&config.NoParallelAccess, "p", config.NoParallelAccess, "forbid parallel access")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RequiredOrder = splitList(*requiredOrder)
	config.AllowedSkips = splitList(*allowedSkips)
	config.MaxAccessDuration = time.Duration(*maxAccessHours) * time.Hour
}

// splitList parses a comma-separated flag value, dropping empty elements.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
