// Package credentials generates and hashes the admin credential a service
// is started with. Generation is idempotent: once a hash exists on disk it is
// reused untouched.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/types"
)

// DefaultUsername is the account the credential is generated for.
const DefaultUsername = "admin"

// MethodExisting marks a result that reused a hash already on disk.
const MethodExisting = "existing"

// ArtifactMode is the permission of both credential files.
const ArtifactMode fs.FileMode = 0600

// WriteFunc writes a whole file atomically.
type WriteFunc func(path string, data []byte, perm os.FileMode) error

// Options configures a Bootstrapper.
type Options struct {
	Username     string
	SecretLength int

	// Strict refuses to fall back to the placeholder hash. The chain given
	// to New must not contain a PlaceholderHasher when Strict is set.
	Strict bool

	// Random is the entropy source; nil uses crypto/rand.
	Random io.Reader

	// WriteFile overrides the atomic writer.
	WriteFile WriteFunc

	Logger log.Logger
}

// Result describes the credential artifacts after Ensure or Rotate.
type Result struct {
	PlaintextPath string
	HashPath      string
	Hash          string
	Method        string
	Degraded      bool
	Reused        bool

	// Warnings are surfaced to the operator.
	Warnings []string
}

// Bootstrapper produces the plaintext and hashed credential artifacts.
type Bootstrapper struct {
	chain  *Chain
	opts   Options
	logger log.Logger
}

// New returns a Bootstrapper that hashes with chain.
func New(chain *Chain, opts Options) *Bootstrapper {
	if opts.Username == "" {
		opts.Username = DefaultUsername
	}
	if opts.SecretLength <= 0 {
		opts.SecretLength = DefaultSecretLength
	}
	if opts.WriteFile == nil {
		opts.WriteFile = atomicwriter.WriteFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Bootstrapper{
		chain:  chain,
		opts:   opts,
		logger: logger.WithComponent("credentials"),
	}
}

// Ensure makes sure both artifacts exist. An existing non-empty hash file is
// reused without any write. An existing plaintext without a hash is hashed
// and only the hash is written.
func (b *Bootstrapper) Ensure(ctx context.Context, paths types.ArtifactPaths) (*Result, error) {
	lock, err := b.lock(ctx, paths)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	hash, err := readArtifact(paths.Hash)
	if err != nil {
		return nil, err
	}
	plaintext, err := readArtifact(paths.Plaintext)
	if err != nil {
		return nil, err
	}

	if hash != "" {
		res := &Result{
			PlaintextPath: paths.Plaintext,
			HashPath:      paths.Hash,
			Hash:          hash,
			Method:        MethodExisting,
			Reused:        true,
		}
		if plaintext != "" && IsPlaceholder(hash, plaintext) {
			res.Degraded = true
			res.Warnings = append(res.Warnings, "existing credential hash is an insecure placeholder; run 'hoist credentials rotate'")
		}
		res.Warnings = append(res.Warnings, permissionWarnings(paths)...)
		b.logger.Info("Reusing existing credential", log.Str("artifact", paths.Hash))
		return res, nil
	}

	writePlaintext := false
	if plaintext == "" {
		plaintext, err = GenerateSecret(b.opts.Random, b.opts.SecretLength)
		if err != nil {
			return nil, err
		}
		writePlaintext = true
	} else {
		b.logger.Info("Hashing existing plaintext credential", log.Str("artifact", paths.Plaintext))
	}

	return b.hashAndWrite(ctx, paths, plaintext, writePlaintext)
}

// Rotate regenerates both artifacts, replacing whatever is on disk. On
// failure the previous artifacts are left untouched.
func (b *Bootstrapper) Rotate(ctx context.Context, paths types.ArtifactPaths) (*Result, error) {
	lock, err := b.lock(ctx, paths)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	previous, err := readArtifact(paths.Plaintext)
	if err != nil {
		return nil, err
	}
	plaintext, err := GenerateSecret(b.opts.Random, b.opts.SecretLength)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Rotating credential", log.Str("dir", paths.Dir))
	res, err := b.hashAndWrite(ctx, paths, plaintext, true)
	if err != nil {
		b.restorePlaintext(paths, previous)
		return nil, err
	}
	return res, nil
}

// restorePlaintext puts back the plaintext that matches the hash still on disk.
func (b *Bootstrapper) restorePlaintext(paths types.ArtifactPaths, previous string) {
	var err error
	if previous == "" {
		err = os.Remove(paths.Plaintext)
		if os.IsNotExist(err) {
			err = nil
		}
	} else {
		err = b.opts.WriteFile(paths.Plaintext, []byte(previous+"\n"), ArtifactMode)
	}
	if err != nil {
		b.logger.Error("Failed to restore plaintext credential", log.Err(err), log.Str("artifact", paths.Plaintext))
	}
}

func (b *Bootstrapper) hashAndWrite(ctx context.Context, paths types.ArtifactPaths, plaintext string, writePlaintext bool) (*Result, error) {
	hr, err := b.chain.Hash(ctx, b.opts.Username, plaintext)
	if err != nil {
		if b.opts.Strict {
			return nil, fmt.Errorf("strict mode: %w", err)
		}
		return nil, err
	}

	res := &Result{
		PlaintextPath: paths.Plaintext,
		HashPath:      paths.Hash,
		Hash:          hr.Hash,
		Method:        hr.Method,
		Degraded:      hr.Degraded,
	}
	if hr.Degraded {
		res.Warnings = append(res.Warnings, "no strong hashing method available; using an insecure placeholder hash")
		b.logger.Warn("Using degraded placeholder credential hash", log.Str("method", hr.Method))
	}

	// The hash file is the idempotency marker, so it is written last.
	if writePlaintext {
		if err := b.opts.WriteFile(paths.Plaintext, []byte(plaintext+"\n"), ArtifactMode); err != nil {
			return nil, fmt.Errorf("failed to write plaintext credential: %w", err)
		}
	}
	if err := b.opts.WriteFile(paths.Hash, []byte(hr.Hash), ArtifactMode); err != nil {
		return nil, fmt.Errorf("failed to write credential hash: %w", err)
	}

	b.logger.Info("Credential artifacts written", log.Str("dir", paths.Dir), log.Str("method", hr.Method))
	return res, nil
}

func (b *Bootstrapper) lock(ctx context.Context, paths types.ArtifactPaths) (*FileLock, error) {
	if err := os.MkdirAll(paths.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create service directory: %w", err)
	}
	return AcquireLock(ctx, filepath.Join(paths.Dir, LockFileName))
}

// ReadPlaintext returns the stored plaintext credential.
func ReadPlaintext(paths types.ArtifactPaths) (string, error) {
	s, err := readArtifact(paths.Plaintext)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("no plaintext credential at %s", paths.Plaintext)
	}
	return s, nil
}

// ReadHash returns the stored hash, or "" when none exists.
func ReadHash(paths types.ArtifactPaths) (string, error) {
	return readArtifact(paths.Hash)
}

func readArtifact(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func permissionWarnings(paths types.ArtifactPaths) []string {
	var warnings []string
	for _, p := range []string{paths.Plaintext, paths.Hash} {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if fi.Mode().Perm()&0077 != 0 {
			warnings = append(warnings, fmt.Sprintf("%s is accessible by other users (mode %o)", p, fi.Mode().Perm()))
		}
	}
	return warnings
}
