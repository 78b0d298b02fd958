package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rzbill/hoist/pkg/runtime/command"
)

// DefaultHelperCommand reads the plaintext from stdin and prints a bcrypt hash.
var DefaultHelperCommand = []string{"mkpasswd", "--method=bcrypt", "--stdin"}

// HelperHasher runs a purpose-built hashing tool with the plaintext on stdin.
type HelperHasher struct {
	runner  command.Runner
	command []string
}

// NewHelperHasher returns a HelperHasher. An empty cmd uses DefaultHelperCommand.
func NewHelperHasher(runner command.Runner, cmd []string) *HelperHasher {
	if len(cmd) == 0 {
		cmd = DefaultHelperCommand
	}
	return &HelperHasher{runner: runner, command: cmd}
}

// Name implements Hasher.
func (h *HelperHasher) Name() string { return MethodHelper }

// Hash implements Hasher.
func (h *HelperHasher) Hash(ctx context.Context, _ string, plaintext string) (string, error) {
	if _, err := h.runner.LookPath(h.command[0]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHasherUnavailable, err)
	}
	out, err := h.runner.Output(ctx, strings.NewReader(plaintext+"\n"), h.command[0], h.command[1:]...)
	if err != nil {
		if errors.Is(err, command.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrHasherUnavailable, err)
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
