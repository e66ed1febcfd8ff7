package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/aturkov/custodykeeper/internal/flagx"
	"github.com/aturkov/custodykeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "24h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN       string         `json:"database_dsn"`
	AMQPURL           string         `json:"amqp_url"`
	AMQPExchange      string         `json:"amqp_exchange"`
	CommandQueue      string         `json:"command_queue"`
	ResultRoutingKey  string         `json:"result_routing_key"`
	RequiredOrder     []string       `json:"required_order"`
	AllowedSkips      []string       `json:"allowed_skips"`
	MaxAccessDuration timex.Duration `json:"max_access_duration"`
	NoParallelAccess  *bool          `json:"no_parallel_access"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.AMQPURL != "" {
		config.AMQPURL = c.AMQPURL
	}
	if c.AMQPExchange != "" {
		config.AMQPExchange = c.AMQPExchange
	}
	if c.CommandQueue != "" {
		config.CommandQueue = c.CommandQueue
	}
	if c.ResultRoutingKey != "" {
		config.ResultRoutingKey = c.ResultRoutingKey
	}
	if c.RequiredOrder != nil {
		config.RequiredOrder = c.RequiredOrder
	}
	if c.AllowedSkips != nil {
		config.AllowedSkips = c.AllowedSkips
	}
	if c.MaxAccessDuration.Duration != 0 {
		config.MaxAccessDuration = time.Duration(c.MaxAccessDuration.Duration)
	}
	if c.NoParallelAccess != nil {
		config.NoParallelAccess = *c.NoParallelAccess
	}
}
