// Package backend builds the data store gateway selected by configuration,
// together with the change hub it publishes to and the optional AMQP bridge
// that mirrors changes between instances.
package backend

import (
	"context"

	"budget/internal/amqp"
	"budget/internal/realtime"
	"budget/internal/store"
)

// Pinger reports whether the underlying database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result is a ready gateway with its hub. Pinger is nil for the memory
// backend and Bridge is nil when AMQP is not configured.
type Result struct {
	Gateway store.Gateway
	Hub     *realtime.Hub
	Pinger  Pinger
	Bridge  *amqp.Bridge
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Instance names this process on the exchange. Each instance consumes
	// from its own queue, AMQPQueue suffixed with the instance name.
	Instance string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
