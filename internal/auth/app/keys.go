package app

import (
	"fmt"
	"log/slog"

	"github.com/opticavillalba/authcore/pkg/cryptox"
)

// ephemeralSecretBytes is the size of a generated development signing key.
const ephemeralSecretBytes = 48

// SigningKey returns the HS256 key from the configuration. Outside production
// a missing key is replaced by a random one; tokens then do not survive a
// restart.
func SigningKey(cfg Config, logger *slog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	if cfg.IsProd() {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}

	secret, err := cryptox.GenerateToken(ephemeralSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral signing key: %w", err)
	}
	logger.Warn("AUTH_JWT_SECRET not set, using an ephemeral signing key",
		"env", cfg.Env,
	)
	logger.Warn("all existing tokens are now invalid due to key rotation on startup")
	return []byte(secret), nil
}

// SecretBox builds the cipher for MFA secrets at rest. Without a configured
// master key a random one is used and enrolled secrets become unreadable
// after a restart, so production refuses to start that way.
func SecretBox(cfg Config, logger *slog.Logger) (*cryptox.SecretBox, error) {
	material, ephemeral, err := cryptox.LoadMasterKey(cfg.MasterKeyPath)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		if cfg.IsProd() {
			return nil, fmt.Errorf("AUTH_MASTER_KEY_PATH or AUTH_MASTER_KEY is required in production")
		}
		logger.Warn("no master key configured, MFA secrets are sealed with an ephemeral key")
	} else {
		logger.Info("master key loaded", "path", cfg.MasterKeyPath)
	}
	return cryptox.NewSecretBox(material)
}
