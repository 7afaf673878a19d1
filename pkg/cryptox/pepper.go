package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// pepper is loaded lazily from pepperFile, or generated on first use.
	pepper     string
	pepperFile string
)

// SetPepperPath points the package at the pepper file. Call once at startup
// before any hashing happens.
func SetPepperPath(file string) {
	pepperFile = file
}

// GetPepper returns the process-wide pepper, loading or generating it on
// first use. Failure to obtain a pepper is unrecoverable.
func GetPepper() string {
	if pepper != "" {
		return pepper
	}

	var err error
	pepper, err = loadOrGeneratePepper()
	if err != nil {
		slog.Error("failed to load or generate pepper", slog.Any("err", err))
		os.Exit(1)
	}
	return pepper
}

func loadOrGeneratePepper() (string, error) {
	pepperFile = filepath.Clean(pepperFile)
	if err := os.MkdirAll(filepath.Dir(pepperFile), 0750); err != nil {
		return "", err
	}

	if _, err := os.Stat(pepperFile); os.IsNotExist(err) {
		raw := make([]byte, keyLength)
		if _, err := rand.Read(raw); err != nil {
			return "", err
		}
		p := base64.RawURLEncoding.EncodeToString(raw)
		if err := os.WriteFile(pepperFile, []byte(p), 0600); err != nil {
			return "", err
		}
		return p, nil
	}

	raw, err := os.ReadFile(pepperFile)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
