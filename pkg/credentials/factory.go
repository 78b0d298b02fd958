package credentials

import (
	"fmt"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/command"
)

// ChainConfig selects and configures hashers.
type ChainConfig struct {
	// Methods lists hasher names in order. Empty means helper, htpasswd, bcrypt.
	Methods []string

	HelperCommand []string
	HtpasswdImage string
	BcryptCost    int

	// Strict drops the placeholder fallback.
	Strict bool
}

// DefaultMethods is the strong hasher order.
var DefaultMethods = []string{MethodHelper, MethodHtpasswd, MethodBcrypt}

// BuildChain assembles a Chain from cfg. The placeholder is appended last
// unless cfg.Strict is set.
func BuildChain(cfg ChainConfig, runner command.Runner, containers ContainerRunner, logger log.Logger) (*Chain, error) {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = DefaultMethods
	}

	var hashers []Hasher
	for _, m := range methods {
		switch m {
		case MethodHelper:
			hashers = append(hashers, NewHelperHasher(runner, cfg.HelperCommand))
		case MethodHtpasswd:
			hashers = append(hashers, NewHtpasswdHasher(containers, cfg.HtpasswdImage))
		case MethodBcrypt:
			hashers = append(hashers, NewBcryptHasher(cfg.BcryptCost))
		case MethodPlaceholder:
			if cfg.Strict {
				return nil, fmt.Errorf("placeholder hasher cannot be used in strict mode")
			}
		default:
			return nil, fmt.Errorf("unknown hashing method: %s", m)
		}
	}
	if !cfg.Strict {
		hashers = append(hashers, &PlaceholderHasher{})
	}
	return NewChain(logger, hashers...), nil
}
