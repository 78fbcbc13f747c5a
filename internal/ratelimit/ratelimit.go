// Package ratelimit enforces the minimum inter-request delays and retry
// policy for each request class, and the single-session concurrency
// discipline the provider's sliding-token cookie scheme requires.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Class distinguishes the delay and retry treatment applied to a request.
type Class string

const (
	ClassDiscovery Class = "discovery"
	ClassDownload  Class = "download"
)

// Policy enforces, per request class, a minimum delay since the last
// request of that class, plus a minimum session-reuse delay since the
// last session-impacting request of any class.
type Policy struct {
	mu sync.Mutex

	discoveryDelay    time.Duration
	downloadDelay     time.Duration
	sessionReuseDelay time.Duration

	lastByClass map[Class]time.Time
	lastSession time.Time

	concurrency int
	log         *slog.Logger
}

// New builds a Policy from the configured per-class delays. Concurrency
// greater than 1 is forced to 1 with a logged warning: the sliding-token
// scheme is incompatible with concurrent in-flight requests on one session.
func New(discoveryDelay, downloadDelay, sessionReuseDelay time.Duration, concurrency int, log *slog.Logger) *Policy {
	if log == nil {
		log = slog.Default()
	}
	if concurrency > 1 {
		log.Warn("concurrency > 1 requested, forcing to 1", "requested", concurrency)
		concurrency = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Policy{
		discoveryDelay:    discoveryDelay,
		downloadDelay:     downloadDelay,
		sessionReuseDelay: sessionReuseDelay,
		lastByClass:       make(map[Class]time.Time),
		concurrency:       concurrency,
		log:               log,
	}
}

func (p *Policy) delayFor(class Class) time.Duration {
	switch class {
	case ClassDiscovery:
		return p.discoveryDelay
	case ClassDownload:
		return p.downloadDelay
	default:
		return 0
	}
}

// Wait blocks until both the class-specific minimum delay and the
// session-reuse delay since the last request have elapsed, or ctx is
// cancelled.
func (p *Policy) Wait(ctx context.Context, class Class) error {
	p.mu.Lock()
	now := time.Now()

	wait := time.Duration(0)
	if last, ok := p.lastByClass[class]; ok {
		if elapsed := now.Sub(last); elapsed < p.delayFor(class) {
			wait = p.delayFor(class) - elapsed
		}
	}
	if !p.lastSession.IsZero() {
		if elapsed := now.Sub(p.lastSession); elapsed < p.sessionReuseDelay {
			if remain := p.sessionReuseDelay - elapsed; remain > wait {
				wait = remain
			}
		}
	}
	p.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	t := time.Now()
	p.lastByClass[class] = t
	p.lastSession = t
	p.mu.Unlock()

	return nil
}

// Concurrency returns the effective (forced) concurrency level.
func (p *Policy) Concurrency() int {
	return p.concurrency
}
