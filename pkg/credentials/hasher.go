package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rzbill/hoist/pkg/log"
)

var (
	// ErrHasherUnavailable means the hasher's tool or runtime is not present.
	ErrHasherUnavailable = errors.New("hasher unavailable")

	// ErrEmptyHash means a hasher ran but produced no output.
	ErrEmptyHash = errors.New("hasher produced an empty hash")

	// ErrNoHasherSucceeded means every hasher in the chain failed.
	ErrNoHasherSucceeded = errors.New("no hashing method succeeded")
)

// Hash method names.
const (
	MethodHelper      = "helper"
	MethodHtpasswd    = "htpasswd"
	MethodBcrypt      = "bcrypt"
	MethodPlaceholder = "placeholder"
)

// Hasher turns a plaintext credential into its hashed form.
type Hasher interface {
	// Name identifies the method in results and logs.
	Name() string

	// Hash returns the hashed credential for username.
	Hash(ctx context.Context, username, plaintext string) (string, error)
}

// HashResult reports which hasher produced a hash.
type HashResult struct {
	Hash     string
	Method   string
	Degraded bool

	// Attempts holds the failure of every hasher tried before the winner.
	Attempts map[string]error
}

// Chain tries hashers in order and stops at the first non-empty output.
type Chain struct {
	hashers []Hasher
	logger  log.Logger
}

// NewChain builds a chain over hashers in the given order.
func NewChain(logger log.Logger, hashers ...Hasher) *Chain {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Chain{hashers: hashers, logger: logger.WithComponent("hasher-chain")}
}

// Methods returns the hasher names in order.
func (c *Chain) Methods() []string {
	names := make([]string, 0, len(c.hashers))
	for _, h := range c.hashers {
		names = append(names, h.Name())
	}
	return names
}

// Hash runs the chain. It fails with ErrNoHasherSucceeded when no hasher
// returns a non-empty hash.
func (c *Chain) Hash(ctx context.Context, username, plaintext string) (*HashResult, error) {
	attempts := make(map[string]error)
	var errs []error

	for _, h := range c.hashers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash, err := h.Hash(ctx, username, plaintext)
		if err == nil && strings.TrimSpace(hash) == "" {
			err = ErrEmptyHash
		}
		if err != nil {
			c.logger.Debug("Hasher failed, trying next", log.Str("method", h.Name()), log.Err(err))
			attempts[h.Name()] = err
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
			continue
		}

		_, degraded := h.(*PlaceholderHasher)
		return &HashResult{
			Hash:     strings.TrimSpace(hash),
			Method:   h.Name(),
			Degraded: degraded,
			Attempts: attempts,
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoHasherSucceeded, errors.Join(errs...))
}
