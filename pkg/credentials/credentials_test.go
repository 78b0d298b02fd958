package credentials

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/command"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainers struct {
	out   string
	err   error
	calls [][]string
	image string
}

func (f *fakeContainers) RunOnce(_ context.Context, image string, cmd []string) (string, error) {
	f.image = image
	f.calls = append(f.calls, cmd)
	return f.out, f.err
}

type writeCounter struct {
	n int
}

func (w *writeCounter) write(path string, data []byte, perm os.FileMode) error {
	w.n++
	return os.WriteFile(path, data, perm)
}

func testPaths(t *testing.T) types.ArtifactPaths {
	env := types.Environment{Name: "test", BaseDir: t.TempDir(), Network: "hoist"}
	return env.Artifacts("portainer")
}

func assertMode(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, want, fi.Mode().Perm(), path)
}

func TestGenerateSecret(t *testing.T) {
	for i := 0; i < 200; i++ {
		s, err := GenerateSecret(nil, DefaultSecretLength)
		require.NoError(t, err)
		assert.Len(t, s, 16)
		assert.False(t, strings.ContainsAny(s, "=+/"), s)
	}
}

func TestGenerateSecretRegeneratesUntilLengthMet(t *testing.T) {
	// 0xfb 0xff 0xbf encodes to "+/+/", which is stripped entirely.
	stripped := bytes.Repeat([]byte{0xfb, 0xff, 0xbf}, 5)
	src := io.MultiReader(bytes.NewReader(stripped), rand.Reader)

	s, err := GenerateSecret(src, 16)
	require.NoError(t, err)
	assert.Len(t, s, 16)
	assert.False(t, strings.ContainsAny(s, "=+/"))
}

func TestGenerateSecretErrors(t *testing.T) {
	_, err := GenerateSecret(iotest.ErrReader(errors.New("boom")), 16)
	assert.Error(t, err)

	_, err = GenerateSecret(nil, 0)
	assert.Error(t, err)
}

func TestChainFallbackOrder(t *testing.T) {
	runner := command.NewFakeRunner() // helper not installed
	containers := &fakeContainers{out: "admin:$2y$05$htpasswdhash\n"}

	chain := NewChain(log.NewTestLogger(),
		NewHelperHasher(runner, nil),
		NewHtpasswdHasher(containers, ""),
		NewBcryptHasher(4),
	)

	res, err := chain.Hash(context.Background(), "admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, MethodHtpasswd, res.Method)
	assert.Equal(t, "$2y$05$htpasswdhash", res.Hash)
	assert.False(t, res.Degraded)
	assert.True(t, errors.Is(res.Attempts[MethodHelper], ErrHasherUnavailable))

	require.Len(t, containers.calls, 1)
	assert.Equal(t, []string{"htpasswd", "-nbB", "admin", "s3cret"}, containers.calls[0])
	assert.Equal(t, DefaultHtpasswdImage, containers.image)
}

func TestChainTreatsEmptyOutputAsFailure(t *testing.T) {
	runner := command.NewFakeRunner("mkpasswd")
	runner.Responses["mkpasswd"] = command.Response{Stdout: "  \n"}

	chain := NewChain(nil, NewHelperHasher(runner, nil), NewBcryptHasher(4))
	res, err := chain.Hash(context.Background(), "admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, MethodBcrypt, res.Method)
	assert.True(t, errors.Is(res.Attempts[MethodHelper], ErrEmptyHash))
	assert.True(t, Matches(res.Hash, "s3cret"))

	calls := runner.CallsTo("mkpasswd")
	require.Len(t, calls, 1)
	assert.Equal(t, "s3cret\n", calls[0].Stdin)
	assert.Equal(t, []string{"--method=bcrypt", "--stdin"}, calls[0].Args)
}

func TestChainAllFail(t *testing.T) {
	chain := NewChain(nil,
		NewHelperHasher(command.NewFakeRunner(), nil),
		NewHtpasswdHasher(nil, ""),
	)
	_, err := chain.Hash(context.Background(), "admin", "x")
	assert.True(t, errors.Is(err, ErrNoHasherSucceeded))
	assert.True(t, errors.Is(err, ErrHasherUnavailable))
}

func TestParseHtpasswd(t *testing.T) {
	hash, err := parseHtpasswd("\nadmin:$2y$05$abc\n\n", "admin")
	require.NoError(t, err)
	assert.Equal(t, "$2y$05$abc", hash)

	_, err = parseHtpasswd("", "admin")
	assert.True(t, errors.Is(err, ErrEmptyHash))

	_, err = parseHtpasswd("garbage", "admin")
	assert.Error(t, err)

	_, err = parseHtpasswd("root:$2y$05$abc", "admin")
	assert.Error(t, err)
}

func TestPlaceholderHasher(t *testing.T) {
	h := &PlaceholderHasher{}
	hash, err := h.Hash(context.Background(), "admin", "abcdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, "$2y$05$YWJjZGVmZ2hpamtsbW5vcA==", hash)
	assert.True(t, IsPlaceholder(hash, "abcdefghijklmnop"))

	long, _ := h.Hash(context.Background(), "admin", strings.Repeat("x", 100))
	assert.Len(t, long, 53)
}

// Fresh host: both artifacts created owner-only.
func TestEnsureFresh(t *testing.T) {
	paths := testPaths(t)
	containers := &fakeContainers{out: "admin:$2y$05$realhash\n"}
	chain, err := BuildChain(ChainConfig{}, command.NewFakeRunner(), containers, nil)
	require.NoError(t, err)

	b := New(chain, Options{Logger: log.NewTestLogger()})
	res, err := b.Ensure(context.Background(), paths)
	require.NoError(t, err)

	assert.False(t, res.Reused)
	assert.Equal(t, MethodHtpasswd, res.Method)
	assertMode(t, paths.Plaintext, 0600)
	assertMode(t, paths.Hash, 0600)

	plain, err := ReadPlaintext(paths)
	require.NoError(t, err)
	assert.Len(t, plain, 16)

	hash, err := ReadHash(paths)
	require.NoError(t, err)
	assert.Equal(t, "$2y$05$realhash", hash)
}

// Second run reuses the existing hash with zero writes.
func TestEnsureIdempotent(t *testing.T) {
	paths := testPaths(t)
	chain := NewChain(nil, NewBcryptHasher(4))

	_, err := New(chain, Options{}).Ensure(context.Background(), paths)
	require.NoError(t, err)
	plainBefore, _ := os.ReadFile(paths.Plaintext)
	hashBefore, _ := os.ReadFile(paths.Hash)

	counter := &writeCounter{}
	res, err := New(chain, Options{WriteFile: counter.write}).Ensure(context.Background(), paths)
	require.NoError(t, err)

	assert.True(t, res.Reused)
	assert.Equal(t, MethodExisting, res.Method)
	assert.Zero(t, counter.n)

	plainAfter, _ := os.ReadFile(paths.Plaintext)
	hashAfter, _ := os.ReadFile(paths.Hash)
	assert.Equal(t, plainBefore, plainAfter)
	assert.Equal(t, hashBefore, hashAfter)
}

func TestEnsureHashesExistingPlaintext(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.MkdirAll(paths.Dir, 0755))
	require.NoError(t, os.WriteFile(paths.Plaintext, []byte("keepThisSecret12\n"), 0600))

	counter := &writeCounter{}
	res, err := New(NewChain(nil, NewBcryptHasher(4)), Options{WriteFile: counter.write}).Ensure(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 1, counter.n, "only the hash is written")
	assert.True(t, Matches(res.Hash, "keepThisSecret12"))

	plain, err := ReadPlaintext(paths)
	require.NoError(t, err)
	assert.Equal(t, "keepThisSecret12", plain)
}

// All strong hashers unavailable, lenient: degraded placeholder, still 0600.
func TestEnsureLenientFallsBackToPlaceholder(t *testing.T) {
	paths := testPaths(t)
	chain, err := BuildChain(ChainConfig{Methods: []string{MethodHelper, MethodHtpasswd}}, command.NewFakeRunner(), nil, nil)
	require.NoError(t, err)

	res, err := New(chain, Options{}).Ensure(context.Background(), paths)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, MethodPlaceholder, res.Method)
	assert.NotEmpty(t, res.Warnings)
	assert.True(t, strings.HasPrefix(res.Hash, "$2y$05$"))
	assertMode(t, paths.Plaintext, 0600)
	assertMode(t, paths.Hash, 0600)

	// A later run flags the reused placeholder.
	again, err := New(chain, Options{}).Ensure(context.Background(), paths)
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.True(t, again.Degraded)
}

// All strong hashers unavailable, strict: labelled error and no artifacts.
func TestEnsureStrictWritesNothing(t *testing.T) {
	paths := testPaths(t)
	chain, err := BuildChain(ChainConfig{Methods: []string{MethodHelper, MethodHtpasswd}, Strict: true}, command.NewFakeRunner(), nil, nil)
	require.NoError(t, err)

	_, err = New(chain, Options{Strict: true}).Ensure(context.Background(), paths)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHasherSucceeded))

	assert.NoFileExists(t, paths.Plaintext)
	assert.NoFileExists(t, paths.Hash)
}

func TestRotateReplacesBoth(t *testing.T) {
	paths := testPaths(t)
	b := New(NewChain(nil, NewBcryptHasher(4)), Options{})

	first, err := b.Ensure(context.Background(), paths)
	require.NoError(t, err)
	oldPlain, _ := ReadPlaintext(paths)

	rotated, err := b.Rotate(context.Background(), paths)
	require.NoError(t, err)
	newPlain, _ := ReadPlaintext(paths)

	assert.NotEqual(t, oldPlain, newPlain)
	assert.NotEqual(t, first.Hash, rotated.Hash)
	assert.True(t, Matches(rotated.Hash, newPlain))
	assertMode(t, paths.Plaintext, 0600)
}

func TestRotateFailureKeepsPrevious(t *testing.T) {
	paths := testPaths(t)
	_, err := New(NewChain(nil, NewBcryptHasher(4)), Options{}).Ensure(context.Background(), paths)
	require.NoError(t, err)
	before, _ := os.ReadFile(paths.Hash)

	failing := NewChain(nil, NewHtpasswdHasher(nil, ""))
	_, err = New(failing, Options{Strict: true}).Rotate(context.Background(), paths)
	require.Error(t, err)

	after, _ := os.ReadFile(paths.Hash)
	assert.Equal(t, before, after)
}

func TestRotateHashWriteFailureRestoresPlaintext(t *testing.T) {
	paths := testPaths(t)
	chain := NewChain(nil, NewBcryptHasher(4))
	first, err := New(chain, Options{}).Ensure(context.Background(), paths)
	require.NoError(t, err)
	oldPlain, err := ReadPlaintext(paths)
	require.NoError(t, err)

	failHash := func(path string, data []byte, perm os.FileMode) error {
		if path == paths.Hash {
			return errors.New("disk full")
		}
		return os.WriteFile(path, data, perm)
	}
	_, err = New(chain, Options{WriteFile: failHash}).Rotate(context.Background(), paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	plain, err := ReadPlaintext(paths)
	require.NoError(t, err)
	hash, err := ReadHash(paths)
	require.NoError(t, err)
	assert.Equal(t, oldPlain, plain)
	assert.Equal(t, first.Hash, hash)
	assert.True(t, Matches(hash, plain))
}

func TestRotateHashWriteFailureWithoutPreviousPlaintext(t *testing.T) {
	paths := testPaths(t)
	failHash := func(path string, data []byte, perm os.FileMode) error {
		if path == paths.Hash {
			return errors.New("disk full")
		}
		return os.WriteFile(path, data, perm)
	}
	_, err := New(NewChain(nil, NewBcryptHasher(4)), Options{WriteFile: failHash}).Rotate(context.Background(), paths)
	require.Error(t, err)

	assert.NoFileExists(t, paths.Plaintext)
	assert.NoFileExists(t, paths.Hash)
}

func TestBuildChain(t *testing.T) {
	chain, err := BuildChain(ChainConfig{}, command.NewFakeRunner(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{MethodHelper, MethodHtpasswd, MethodBcrypt, MethodPlaceholder}, chain.Methods())

	strict, err := BuildChain(ChainConfig{Strict: true}, command.NewFakeRunner(), nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, strict.Methods(), MethodPlaceholder)

	_, err = BuildChain(ChainConfig{Methods: []string{MethodPlaceholder}, Strict: true}, nil, nil, nil)
	assert.Error(t, err)

	_, err = BuildChain(ChainConfig{Methods: []string{"md5"}}, nil, nil, nil)
	assert.Error(t, err)
}

func TestAcquireLockExcludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)

	first, err := AcquireLock(context.Background(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = AcquireLock(ctx, path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, first.Release())

	second, err := AcquireLock(context.Background(), path)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}
