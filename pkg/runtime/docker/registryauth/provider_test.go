package registryauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, b64 string) map[string]string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestHostMatches(t *testing.T) {
	assert.True(t, hostMatches("ghcr.io", "GHCR.io"))
	assert.True(t, hostMatches("*.dkr.ecr.us-east-1.amazonaws.com", "123456789012.dkr.ecr.us-east-1.amazonaws.com"))
	assert.False(t, hostMatches("*.example.com", "repo.example.org"))
	assert.False(t, hostMatches("", "ghcr.io"))
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(StaticConfig{Registry: "ghcr.io", Username: "u", Password: "p"})
	b64, err := p.Resolve(context.Background(), "ghcr.io", "ghcr.io/acme/app:1.0")
	require.NoError(t, err)
	m := decode(t, b64)
	assert.Equal(t, "u", m["username"])
	assert.Equal(t, "p", m["password"])
	assert.Equal(t, "ghcr.io", m["serveraddress"])

	tok := NewStaticProvider(StaticConfig{Registry: "ghcr.io", Token: "t0k"})
	b64, err = tok.Resolve(context.Background(), "ghcr.io", "")
	require.NoError(t, err)
	assert.Equal(t, "token", decode(t, b64)["username"])

	empty := NewStaticProvider(StaticConfig{Registry: "ghcr.io"})
	b64, err = empty.Resolve(context.Background(), "ghcr.io", "")
	require.NoError(t, err)
	assert.Empty(t, b64)
}

func TestStaticProviderSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghcr-token")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0600))

	p := NewStaticProvider(StaticConfig{Registry: "ghcr.io", Username: "bot", SecretFile: path})
	b64, err := p.Resolve(context.Background(), "ghcr.io", "")
	require.NoError(t, err)
	m := decode(t, b64)
	assert.Equal(t, "bot", m["username"])
	assert.Equal(t, "s3cret", m["password"])

	missing := NewStaticProvider(StaticConfig{Registry: "ghcr.io", SecretFile: path + ".absent"})
	_, err = missing.Resolve(context.Background(), "ghcr.io", "")
	assert.Error(t, err)
}

func TestDockerConfigJSONProvider(t *testing.T) {
	auth := base64.StdEncoding.EncodeToString([]byte("user:pass"))
	dcj := `{"auths": {"ghcr.io": {"auth": "` + auth + `"}}}`

	p := NewDockerConfigJSONProvider("ghcr.io", dcj)
	require.True(t, p.Match("ghcr.io"))
	b64, err := p.Resolve(context.Background(), "ghcr.io", "ghcr.io/acme/app:1.0")
	require.NoError(t, err)
	m := decode(t, b64)
	assert.Equal(t, "user", m["username"])
	assert.Equal(t, "pass", m["password"])

	_, err = NewDockerConfigJSONProvider("ghcr.io", "{").Resolve(context.Background(), "ghcr.io", "")
	assert.Error(t, err)
}

func TestECRProviderCachesToken(t *testing.T) {
	p := NewECRProvider(ECRConfig{Registry: "*.dkr.ecr.us-east-1.amazonaws.com"})
	calls := 0
	p.fetch = func(ctx context.Context, region, host string) (string, string, time.Time, error) {
		calls++
		assert.Equal(t, "us-east-1", region)
		return "AWS", "secret", time.Now().Add(time.Hour), nil
	}

	host := "123456789012.dkr.ecr.us-east-1.amazonaws.com"
	for i := 0; i < 3; i++ {
		b64, err := p.Resolve(context.Background(), host, host+"/repo:tag")
		require.NoError(t, err)
		assert.Equal(t, "AWS", decode(t, b64)["username"])
	}
	assert.Equal(t, 1, calls)
}

func TestECRProviderFallsBackToAnonymous(t *testing.T) {
	p := NewECRProvider(ECRConfig{Registry: "*.amazonaws.com"})
	p.fetch = func(ctx context.Context, region, host string) (string, string, time.Time, error) {
		return "", "", time.Time{}, errors.New("no credentials")
	}
	b64, err := p.Resolve(context.Background(), "1.dkr.ecr.eu-west-1.amazonaws.com", "")
	require.NoError(t, err)
	assert.Empty(t, b64)
}

func TestBuildProviders(t *testing.T) {
	regs := []RegistryConfig{
		{Registry: "ghcr.io", Auth: Auth{Type: TypeBasic, Username: "u", Password: "p"}},
		{Registry: "*.dkr.ecr.us-east-1.amazonaws.com", Auth: Auth{Type: TypeECR, Region: "us-east-1"}},
		{Registry: "index.docker.io", Auth: Auth{Type: TypeDockerConfigJSON, DockerConfigJSON: `{"auths":{"https://index.docker.io/v1/":{"identitytoken":"idtok"}}}`}},
		{Registry: "quay.io", Auth: Auth{Type: "kerberos"}},
	}
	assert.Len(t, BuildProviders(context.Background(), regs), 3)
}

type stubProvider struct {
	pattern string
	auth    string
	err     error
	calls   int
}

func (s *stubProvider) Match(host string) bool { return hostMatches(s.pattern, host) }

func (s *stubProvider) Resolve(context.Context, string, string) (string, error) {
	s.calls++
	return s.auth, s.err
}

func TestFirst(t *testing.T) {
	ctx := context.Background()
	empty := &stubProvider{pattern: "ghcr.io"}
	hit := &stubProvider{pattern: "*.io", auth: "abc"}
	other := &stubProvider{pattern: "quay.io", auth: "nope"}

	auth, err := First(ctx, []Provider{other, empty, hit}, "ghcr.io", "ghcr.io/acme/app")
	require.NoError(t, err)
	assert.Equal(t, "abc", auth)
	assert.Equal(t, 0, other.calls)
	assert.Equal(t, 1, empty.calls)

	auth, err = First(ctx, []Provider{hit}, "", "app")
	require.NoError(t, err)
	assert.Empty(t, auth)

	failing := &stubProvider{pattern: "ghcr.io", err: errors.New("boom")}
	_, err = First(ctx, []Provider{failing, hit}, "ghcr.io", "ghcr.io/acme/app")
	assert.Error(t, err)
}
