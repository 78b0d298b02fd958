package registryauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

type ECRConfig struct {
	Registry string // pattern, e.g., *.dkr.ecr.us-east-1.amazonaws.com
	Region   string // optional override
}

// tokenFetcher returns a registry username, password and expiry.
type tokenFetcher func(ctx context.Context, region, host string) (string, string, time.Time, error)

// ECRProvider exchanges AWS credentials for short-lived ECR pull tokens and
// caches them per host until shortly before expiry.
type ECRProvider struct {
	cfg   ECRConfig
	fetch tokenFetcher
	mu    sync.Mutex
	cache map[string]ecrEntry // host -> entry
}

type ecrEntry struct {
	Username string
	Password string
	Expires  time.Time
}

func NewECRProvider(cfg ECRConfig) *ECRProvider {
	return &ECRProvider{cfg: cfg, fetch: fetchECRToken, cache: make(map[string]ecrEntry)}
}

func (p *ECRProvider) Match(host string) bool {
	return hostMatches(p.cfg.Registry, host)
}

// Resolve returns cached credentials or fetches new ones. Fetch failures
// fall back to an anonymous pull.
func (p *ECRProvider) Resolve(ctx context.Context, host, imageRef string) (string, error) {
	p.mu.Lock()
	if ent, ok := p.cache[host]; ok && time.Until(ent.Expires) > 5*time.Minute {
		p.mu.Unlock()
		return encode(ent.Username, ent.Password, host), nil
	}
	p.mu.Unlock()

	region := p.cfg.Region
	if region == "" {
		region = regionFromHost(host)
	}
	if region == "" {
		return "", nil
	}

	username, password, exp, err := p.fetch(ctx, region, host)
	if err != nil {
		return "", nil
	}
	p.mu.Lock()
	p.cache[host] = ecrEntry{Username: username, Password: password, Expires: exp}
	p.mu.Unlock()
	return encode(username, password, host), nil
}

// regionFromHost extracts the region from <account>.dkr.ecr.<region>.amazonaws.com.
func regionFromHost(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) >= 6 && parts[1] == "dkr" && parts[2] == "ecr" {
		return parts[3]
	}
	return ""
}

func fetchECRToken(ctx context.Context, region, host string) (string, string, time.Time, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return "", "", time.Time{}, err
	}
	cli := ecr.NewFromConfig(cfg)
	out, err := cli.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", time.Time{}, err
	}
	if len(out.AuthorizationData) == 0 {
		return "", "", time.Time{}, fmt.Errorf("ecr: empty auth data")
	}
	var chosen ecrtypes.AuthorizationData
	for _, ad := range out.AuthorizationData {
		if ad.ProxyEndpoint != nil && strings.Contains(*ad.ProxyEndpoint, host) {
			chosen = ad
			break
		}
	}
	if chosen.AuthorizationToken == nil {
		chosen = out.AuthorizationData[0]
	}
	if chosen.AuthorizationToken == nil {
		return "", "", time.Time{}, fmt.Errorf("ecr: missing authorization token")
	}
	tok, err := base64.StdEncoding.DecodeString(*chosen.AuthorizationToken)
	if err != nil {
		return "", "", time.Time{}, err
	}
	user, pass, ok := strings.Cut(string(tok), ":")
	if !ok {
		return "", "", time.Time{}, fmt.Errorf("ecr: invalid token format")
	}
	exp := time.Now().Add(12 * time.Hour)
	if chosen.ExpiresAt != nil {
		exp = *chosen.ExpiresAt
	}
	return user, pass, exp, nil
}
