package useragent

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Printer asks the user to open the URI themselves. It is the user-agent for
// headless hosts.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Present(ctx context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.w, "Open the following URL in your browser to continue:\n\n  %s\n\n", uri); err != nil {
		return fmt.Errorf("failed to print URL: %w", err)
	}
	return nil
}

func (p *Printer) Dismiss(ctx context.Context, outcome error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if outcome == nil {
		_, err = fmt.Fprintln(p.w, "Authorization finished, you can close the browser window.")
	} else {
		_, err = fmt.Fprintf(p.w, "Authorization did not complete (%v), you can close the browser window.\n", outcome)
	}
	return err
}
