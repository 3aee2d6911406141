// Package useragent presents authorization request URIs in an external
// user-agent: the default browser, a configured command, or the terminal.
package useragent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marcogenualdo/sso-relay/internal/config"
)

// ErrNoBrowser is returned when no capable user-agent could be found.
var ErrNoBrowser = errors.New("browser not found")

// Launcher presents a URI to the user. Present must return as soon as the
// user-agent has been asked to open the URI; it never waits for the user.
type Launcher interface {
	Present(ctx context.Context, uri string) error
}

// Dismisser is implemented by user-agents that can be asked to close once the
// last pending flow is over. outcome is nil when that flow succeeded.
// Dismissal is best effort.
type Dismisser interface {
	Dismiss(ctx context.Context, outcome error) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, uri string) error

func (f LauncherFunc) Present(ctx context.Context, uri string) error {
	return f(ctx, uri)
}

func New(cfg config.UserAgentConfig, out io.Writer) (Launcher, error) {
	if out == nil {
		out = os.Stderr
	}

	switch cfg.Type {
	case "browser":
		return NewBrowser(), nil
	case "command":
		return NewCommand(cfg.Command)
	case "print":
		return NewPrinter(out), nil
	default:
		return nil, fmt.Errorf("unsupported user agent type: %s", cfg.Type)
	}
}
