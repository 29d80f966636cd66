// Package secrets resolves credentials given as environment references
// (${VAR}, ${VAR:-default}) or as mounted secret files such as Docker or
// Kubernetes secrets. Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
)

// maxSecretFileSize limits secret file reads; secrets are tokens and passwords, not documents.
const maxSecretFileSize = 64 * 1024

func secretError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Build()
}

// ExpandString expands ${VAR} and ${VAR:-default} references in s.
// A reference without a fallback to an unset or empty variable is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretError("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// ReadFile returns the contents of a secret file without trailing newlines.
// Files readable by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError("secret file path is empty")
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", secretError("secret file not found: %s", cleanPath)
		}
		return "", secretError("failed to stat secret file %s: %w", cleanPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", secretError("secret path is not a regular file: %s", cleanPath)
	}
	if info.Size() > maxSecretFileSize {
		return "", secretError("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", cleanPath),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", secretError("failed to read secret file %s: %w", cleanPath, err)
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError("secret file is empty: %s", cleanPath)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}
