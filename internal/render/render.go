// Package render delegates page rendering to an external command. Some
// sites build their listings client-side, so fetching the raw HTML is
// useless; a headless browser (or any tool that prints the rendered DOM
// to stdout) fills the gap.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
)

// Command renders pages by invoking a configured external command with
// the final URL as its last argument and reading HTML from stdout, e.g.
// "chromium --headless --dump-dom".
type Command struct {
	argv   []string
	logger *slog.Logger
}

// NewCommand builds a renderer from a shell-like command line. It returns
// an error when the command is empty or its binary is not on PATH, so
// callers can degrade gracefully.
func NewCommand(command string, logger *slog.Logger) (*Command, error) {
	if logger == nil {
		logger = slog.Default()
	}
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("renderer command is empty")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("renderer command not found: %w", err)
	}
	return &Command{argv: argv, logger: logger}, nil
}

// Render fetches the fully rendered document for rawURL with the given
// query parameters.
func (c *Command) Render(ctx context.Context, rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	u.RawQuery = params.Encode()

	args := append(append([]string(nil), c.argv[1:]...), u.String())
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", u.String(), err)
	}
	c.logger.Debug("rendered page", "url", u.String(), "bytes", len(out))
	return string(out), nil
}
