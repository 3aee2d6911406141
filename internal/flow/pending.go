package flow

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

type outcome struct {
	result *Result
	err    error
}

// PendingFlow is one in-flight authorization attempt. The table owns it until
// Take hands it to the single goroutine allowed to resume it.
type PendingFlow struct {
	Token     string
	CreatedAt time.Time
	Deadline  time.Time

	// RedirectURI is the redirect this flow expects. Empty accepts any
	// registered redirect URI.
	RedirectURI string

	expect *url.URL
	done   chan outcome
	timer  *time.Timer
}

func newPendingFlow(token string, createdAt, deadline time.Time, expect *url.URL) *PendingFlow {
	p := &PendingFlow{
		Token:     token,
		CreatedAt: createdAt,
		Deadline:  deadline,
		expect:    expect,
		done:      make(chan outcome, 1),
	}
	if expect != nil {
		p.RedirectURI = expect.String()
	}
	return p
}

// accepts reports whether a redirect to u may resolve this flow.
func (p *PendingFlow) accepts(u *url.URL) bool {
	return p.expect == nil || sameTarget(u, p.expect)
}

// resume delivers the final outcome. Only the caller that took the flow out of
// the table may call it, so the buffered send never blocks.
func (p *PendingFlow) resume(result *Result, err error) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- outcome{result: result, err: err}
}

// Flow is the caller's handle on a started authorization attempt.
type Flow struct {
	token      string
	requestURI string
	deadline   time.Time
	done       <-chan outcome
	manager    *Manager

	once   sync.Once
	result *Result
	err    error
}

func (f *Flow) Token() string {
	return f.token
}

// RequestURI is the URI that was handed to the user-agent.
func (f *Flow) RequestURI() string {
	return f.requestURI
}

func (f *Flow) Deadline() time.Time {
	return f.deadline
}

// Cancel aborts the flow. It reports false if the flow was already resolved.
func (f *Flow) Cancel() bool {
	return f.manager.cancel(f.token, nil)
}

// Wait suspends until the flow is resolved, expired or cancelled. If ctx ends
// first the flow is cancelled, but Wait still returns whichever outcome won
// the race. Later calls return the same outcome.
func (f *Flow) Wait(ctx context.Context) (*Result, error) {
	f.once.Do(func() {
		var o outcome
		select {
		case o = <-f.done:
		case <-ctx.Done():
			f.manager.cancel(f.token, ctx.Err())
			o = <-f.done
		}
		f.result, f.err = o.result, o.err
	})
	return f.result, f.err
}

func cancelledError(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
