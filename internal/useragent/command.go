package useragent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const urlPlaceholder = "{url}"

// Command launches a configured program, e.g. ["firefox", "--new-window", "{url}"].
// The URI is appended when no argument carries the placeholder.
type Command struct {
	name string
	args []string
}

func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("command is required")
	}
	return &Command{name: argv[0], args: argv[1:]}, nil
}

func (c *Command) Present(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	if _, err := lookPath(c.name); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoBrowser, c.name, err)
	}

	cmd := exec.Command(c.name, c.expand(uri)...)
	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.name, err)
	}

	return nil
}

func (c *Command) expand(uri string) []string {
	args := make([]string, 0, len(c.args)+1)
	substituted := false
	for _, arg := range c.args {
		if strings.Contains(arg, urlPlaceholder) {
			arg = strings.ReplaceAll(arg, urlPlaceholder, uri)
			substituted = true
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, uri)
	}
	return args
}
