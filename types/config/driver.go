package config

import "strings"

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	Sqlite
	Memory
)

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}

// String converts the StorageDriver enum to a human-readable string.
// The value doubles as the migrations directory name.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Sqlite:
		return "sqlite"
	case Memory:
		return "memory"
	}
	return "unknown"
}

// ParseStorageDriver maps DATABASE_DRIVER values onto StorageDriver.
func ParseStorageDriver(raw string) (StorageDriver, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql":
		return Postgres, true
	case "sqlite", "sqlite3":
		return Sqlite, true
	case "memory":
		return Memory, true
	}
	return 0, false
}
