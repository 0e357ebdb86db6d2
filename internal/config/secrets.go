package config

import (
	"fmt"

	"github.com/kektech/marketd/internal/crypto"
)

// ResolveAPIKey returns the server API key, decrypting the encrypted key file
// when one is configured. An empty result means authentication is disabled.
func (c *Config) ResolveAPIKey() (string, error) {
	key, err := crypto.LoadSecret(crypto.SecretConfig{
		Raw:           c.Server.APIKey,
		EncryptedPath: c.Server.APIKeyEncryptedPath,
		Password:      c.Server.APIKeyPassword,
	})
	if err != nil {
		return "", fmt.Errorf("config: resolving api key: %w", err)
	}
	return key, nil
}

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.APIKey)
	redact(&out.Server.APIKeyPassword)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.WebhookSecret)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Engine.Params != nil {
		out.Engine.Params = make(map[string]string, len(cfg.Engine.Params))
		for k, v := range cfg.Engine.Params {
			out.Engine.Params[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
