// Package throttle limits how hard batch workers hit each upstream service.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Gate caps concurrent callers and spaces out successive admissions. A nil
// Gate admits everyone immediately.
type Gate struct {
	name        string
	slots       chan struct{}
	minInterval time.Duration

	mu   sync.Mutex
	next time.Time
	now  func() time.Time
}

// NewGate returns a gate allowing at most concurrency callers at once, with at
// least minInterval between admissions. concurrency < 1 is treated as 1.
func NewGate(name string, concurrency int, minInterval time.Duration) *Gate {
	if concurrency < 1 {
		concurrency = 1
	}
	if minInterval < 0 {
		minInterval = 0
	}
	return &Gate{
		name:        name,
		slots:       make(chan struct{}, concurrency),
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Name identifies the gate in logs.
func (g *Gate) Name() string {
	if g == nil {
		return ""
	}
	return g.name
}

// Acquire blocks until the caller may proceed or ctx is done. The returned
// release must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if wait := g.reserve(); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-g.slots
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-g.slots })
	}, nil
}

// Do runs fn while holding the gate.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// reserve books the next admission slot and returns how long to wait for it.
func (g *Gate) reserve() time.Duration {
	if g.minInterval == 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	at := now
	if g.next.After(now) {
		at = g.next
	}
	g.next = at.Add(g.minInterval)
	return at.Sub(now)
}

// Set bundles the gates for each upstream service.
type Set struct {
	Acquisition   *Gate
	Transcription *Gate
	Analysis      *Gate
}
