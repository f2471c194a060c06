package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
)

// BootstrapUser seeds an initial account when the users table is empty.
// It is idempotent: if any user exists, it does nothing. The generated
// password is written to the configured secrets path, or logged when no
// path is set.
func BootstrapUser(ctx context.Context, repo UserRepository, cfg Config) error {
	if !cfg.BootstrapUserEnabled {
		return nil
	}

	has, err := repo.HasAny(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := repo.Create(ctx, cfg.BootstrapUserEmail, hash); err != nil {
		return err
	}

	if cfg.InitialUserPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialUserPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Printf("initial user created; credentials written to %s", cfg.InitialUserPasswordPath)
	} else {
		log.Printf("initial user created email=%s password=%s", cfg.BootstrapUserEmail, password)
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
