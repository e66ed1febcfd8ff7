package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-d", "db", "-m", "amqp://broker:5672/", "-e", "custody", "-q", "cmds", "-r", "results",
			"-o", "COLLECTED,SEALED,ANALYZED,VERIFIED", "-k", "SEALED", "-x", "12", "-p=false",
		}, expectPanic: false,
			expected: &Config{
				DatabaseDSN:       "db",
				AMQPURL:           "amqp://broker:5672/",
				AMQPExchange:      "custody",
				CommandQueue:      "cmds",
				ResultRoutingKey:  "results",
				RequiredOrder:     []string{"COLLECTED", "SEALED", "ANALYZED", "VERIFIED"},
				AllowedSkips:      []string{"SEALED"},
				MaxAccessDuration: 12 * time.Hour,
				NoParallelAccess:  false,
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, splitList("A,B"))
	assert.Equal(t, []string{"A", "B"}, splitList(" A , B "))
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , "))
}
