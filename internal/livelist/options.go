package livelist

import (
	"time"

	"github.com/MrSnakeDoc/unilend/internal/logger"
)

type options struct {
	rollback     bool
	writeTimeout time.Duration
	eventBuffer  int
	log          logger.Logger
}

func defaultOptions() options {
	return options{
		rollback:     true,
		writeTimeout: 10 * time.Second,
		eventBuffer:  16,
		log:          logger.Nop(),
	}
}

// Option configures a List.
type Option func(*options)

// WithRollback controls what happens to an optimistic patch whose remote
// write failed. When enabled (the default) the patch is dropped at once and
// the item shows the last server state again. When disabled the patch stays
// until the next snapshot of its origin replaces it.
func WithRollback(enabled bool) Option {
	return func(o *options) { o.rollback = enabled }
}

// WithWriteTimeout bounds each remote write. Writes are detached from the
// caller's context so they survive the view being closed.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
