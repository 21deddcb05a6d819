package notify

import (
	"context"
	"time"

	"github.com/nkovacs/hospital/internal/replica"
)

// Transition is one replica lifecycle change worth alerting on.
type Transition struct {
	Replica string
	From    replica.State
	To      replica.State
	At      time.Time
}

// Notifier delivers replica transition alerts to external systems.
type Notifier interface {
	Notify(ctx context.Context, service string, transitions []Transition) error
}
