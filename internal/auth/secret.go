package auth

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
)

const (
	minSecretBytes       = 32
	ephemeralSecretBytes = 32
)

// ResolveSecret returns the signing secret for the token service.
//
// A configured value is used as is. Without one, allowEphemeral decides
// between a random per-process secret (tokens die with the process) and
// ErrMissingSecret. There is no built-in default secret.
func ResolveSecret(configured string, allowEphemeral bool, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	configured = strings.TrimSpace(configured)
	if configured != "" {
		if len(configured) < minSecretBytes {
			logger.Warn("auth secret is shorter than recommended",
				"length", len(configured), "recommended", minSecretBytes)
		}
		return []byte(configured), nil
	}
	if !allowEphemeral {
		return nil, ErrMissingSecret
	}
	buf := make([]byte, ephemeralSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate ephemeral secret: %w", err)
	}
	logger.Warn("auth secret not configured; using an ephemeral secret, sessions will not survive a restart")
	return buf, nil
}
