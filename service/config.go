package service

import (
	"time"

	"lobsim/domain/environment"
)

type Config struct {
	Env environment.Config

	// AutoQuote re-quotes the configured ladder levels before every step.
	AutoQuote bool

	SnapshotDir      string
	SnapshotInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Env:              environment.DefaultConfig(),
		AutoQuote:        true,
		SnapshotDir:      "./snapshots",
		SnapshotInterval: 10 * time.Second,
	}
}
