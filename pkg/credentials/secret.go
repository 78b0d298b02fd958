package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// DefaultSecretLength is the length of a generated plaintext credential.
const DefaultSecretLength = 16

var stripper = strings.NewReplacer("=", "", "+", "", "/", "")

// GenerateSecret returns a random string of length characters drawn from
// the base64 alphabet without '=', '+' or '/'. A nil source uses crypto/rand.
func GenerateSecret(source io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}
	if source == nil {
		source = rand.Reader
	}

	var sb strings.Builder
	buf := make([]byte, (length*3)/4+3)
	for sb.Len() < length {
		if _, err := io.ReadFull(source, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		sb.WriteString(stripper.Replace(base64.StdEncoding.EncodeToString(buf)))
	}
	return sb.String()[:length], nil
}
