package useragent

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// startCommand starts a user-agent process without waiting for it. Tests
// replace it to keep browsers from opening.
var startCommand = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

var lookPath = exec.LookPath

// Browser opens URIs in the platform's default browser.
type Browser struct {
	goos string
}

func NewBrowser() *Browser {
	return &Browser{goos: runtime.GOOS}
}

func (b *Browser) Present(ctx context.Context, uri string) error {
	if err := validateBrowserURL(uri); err != nil {
		return err
	}

	name, args, err := browserCommand(b.goos, uri)
	if err != nil {
		return err
	}

	if _, err := lookPath(name); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoBrowser, name, err)
	}

	// The browser outlives the request, so it is not bound to ctx.
	cmd := exec.Command(name, args...)
	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}

func browserCommand(goos, uri string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{uri}, nil
	case "darwin":
		return "open", []string{uri}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", uri}, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported platform: %s", ErrNoBrowser, goos)
	}
}

func validateBrowserURL(uri string) error {
	if uri == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: only http and https are allowed", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	return nil
}
