package credentials

import (
	"context"
	"encoding/base64"
	"strings"
)

const (
	placeholderPrefix = "$2y$05$"
	placeholderLength = 53
)

// PlaceholderHasher produces a bcrypt-shaped string that is not a real hash.
// Anything using it is degraded and insecure.
type PlaceholderHasher struct{}

// Name implements Hasher.
func (*PlaceholderHasher) Name() string { return MethodPlaceholder }

// Hash implements Hasher.
func (*PlaceholderHasher) Hash(_ context.Context, _ string, plaintext string) (string, error) {
	s := placeholderPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext))
	if len(s) > placeholderLength {
		s = s[:placeholderLength]
	}
	return s, nil
}

// IsPlaceholder reports whether hash looks like placeholder output for plaintext.
func IsPlaceholder(hash, plaintext string) bool {
	want, _ := (&PlaceholderHasher{}).Hash(context.Background(), "", plaintext)
	return strings.TrimSpace(hash) == want
}
