package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/logger"
)

// DefaultViewIdle is how long a view without a stream survives.
const DefaultViewIdle = 15 * time.Minute

// ViewCloser is the part of the view registry the reaper drives.
type ViewCloser interface {
	Reap(idle time.Duration) int
}

// SessionPurger drops expired sessions from a store that does not expire
// keys itself.
type SessionPurger interface {
	Purge() int
}

// ViewReaper closes idle live views and purges expired sessions.
type ViewReaper struct {
	views    ViewCloser
	sessions SessionPurger
	logger   logger.Logger
	interval time.Duration
	idle     time.Duration
	stopCh   chan struct{}
}

// NewViewReaper creates a new reaper. sessions may be nil.
func NewViewReaper(
	views ViewCloser,
	sessions SessionPurger,
	log logger.Logger,
	interval time.Duration,
	idle time.Duration,
) *ViewReaper {
	if idle == 0 {
		idle = DefaultViewIdle
	}

	return &ViewReaper{
		views:    views,
		sessions: sessions,
		logger:   log,
		interval: interval,
		idle:     idle,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic reaping
func (vr *ViewReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(vr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				vr.Collect()
			case <-vr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (vr *ViewReaper) Stop() {
	close(vr.stopCh)
}

// Collect runs one pass and returns the number of views closed.
func (vr *ViewReaper) Collect() int {
	views := vr.views.Reap(vr.idle)

	sessions := 0
	if vr.sessions != nil {
		sessions = vr.sessions.Purge()
	}

	if views > 0 || sessions > 0 {
		vr.logger.Info("reaped idle state",
			logger.Int("views_closed", views),
			logger.Int("sessions_purged", sessions),
			logger.Duration("idle_threshold", vr.idle))
	} else {
		vr.logger.Debug("nothing to reap")
	}
	return views
}
