package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

const defaultCommandTimeout = 45 * time.Second

// Command pipes the document through an external converter that reads stdin
// and writes plain text to stdout.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// ParseCommand splits a command line on whitespace.
func ParseCommand(line string) (Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, errors.New("empty command")
	}
	return Command{Path: parts[0], Args: parts[1:]}, nil
}

func (c Command) Extract(ctx context.Context, data []byte) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// jalankan converter
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s timed out after %s", c.Path, timeout)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: converter %s not installed", jobs.ErrUnsupportedFormat, c.Path)
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return "", fmt.Errorf("%w: %s exited %d: %s", jobs.ErrUnsupportedFormat, c.Path, ee.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("run %s: %w", c.Path, err)
	}
	return normalize(stdout.String()), nil
}
