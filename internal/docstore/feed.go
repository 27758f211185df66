package docstore

import "sync"

// Feed is the Subscription used by both backends. Publish never blocks:
// an undelivered snapshot is replaced by the newer one.
type Feed struct {
	ch   chan []Document
	done chan struct{}
	stop func()

	mu     sync.Mutex
	err    error
	closed bool
}

// NewFeed returns a feed that calls stop once when it ends.
func NewFeed(stop func()) *Feed {
	return &Feed{
		ch:   make(chan []Document, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

func (f *Feed) Snapshots() <-chan []Document { return f.ch }

// Done is closed when the feed ends for any reason.
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Publish hands docs to the consumer, dropping any older pending snapshot.
// It reports false once the feed has ended.
func (f *Feed) Publish(docs []Document) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- docs
	return true
}

// Fail ends the feed with err.
func (f *Feed) Fail(err error) {
	f.end(err)
}

// Close ends the feed without error. Safe to call repeatedly.
func (f *Feed) Close() {
	f.end(nil)
}

func (f *Feed) end(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.err = err
	close(f.ch)
	close(f.done)
	stop := f.stop
	f.mu.Unlock()

	if stop != nil {
		stop()
	}
}
