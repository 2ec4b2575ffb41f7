// Package env reads the portal credentials from PPMI_LOGIN and PPMI_PASSWORD.
package env

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
)

const (
	LoginVar    = "PPMI_LOGIN"
	PasswordVar = "PPMI_PASSWORD"
)

var ErrReadOnly = fmt.Errorf("environment secret store is read-only: %w", errors.ErrUnsupported)

type Store struct {
	lookup func(string) (string, bool)
	vars   map[string]string
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		lookup: os.LookupEnv,
		vars: map[string]string{
			domain.SecretKeyLogin:    LoginVar,
			domain.SecretKeyPassword: PasswordVar,
		},
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, ok := s.vars[key]
	if !ok {
		return "", fmt.Errorf("env secret %q: %w", key, ports.ErrSecretNotFound)
	}
	value, ok := s.lookup(name)
	if !ok || value == "" {
		return "", fmt.Errorf("env secret %s: %w", name, ports.ErrSecretNotFound)
	}
	return value, nil
}

func (s *Store) Put(context.Context, string, string) error {
	return ErrReadOnly
}

func (s *Store) Delete(context.Context, string) error {
	return ErrReadOnly
}
