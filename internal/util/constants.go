// Package util provides common constants and helpers shared across devdeck.
// It imports no other internal package.
package util

import "time"

const (
	// HealthProbeTimeout bounds a single healthcheck HTTP request.
	HealthProbeTimeout = 2 * time.Second

	// DefaultRefreshSeconds is the dashboard refresh interval used when
	// config.yaml carries no usable value.
	DefaultRefreshSeconds = 3

	// DefaultAPIListen is where `devdeck serve` listens unless configured.
	DefaultAPIListen = "127.0.0.1:7781"

	// StderrRingSize is how many ssh stderr lines are kept per process.
	StderrRingSize = 100

	// ProcessWaitDelay is how long Wait keeps reading a dead ssh process's
	// stderr before closing the pipe under any child that still holds it.
	ProcessWaitDelay = 2 * time.Second
)
