package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
)

var ErrCredentialsNotConfigured = errors.New("ppmi credentials are not configured")

// CredentialStore keeps the portal login in a secret store under
// domain.SecretKeyLogin and domain.SecretKeyPassword.
type CredentialStore struct {
	store ports.SecretStore
}

func NewCredentialStore(store ports.SecretStore) *CredentialStore {
	return &CredentialStore{store: store}
}

func (c *CredentialStore) Load(ctx context.Context) (domain.Credentials, error) {
	login, err := c.store.Get(ctx, domain.SecretKeyLogin)
	if err != nil {
		if errors.Is(err, ports.ErrSecretNotFound) {
			return domain.Credentials{}, fmt.Errorf("%w: %w", ErrCredentialsNotConfigured, err)
		}
		return domain.Credentials{}, fmt.Errorf("load ppmi login: %w", err)
	}

	password, err := c.store.Get(ctx, domain.SecretKeyPassword)
	if err != nil {
		if errors.Is(err, ports.ErrSecretNotFound) {
			return domain.Credentials{}, fmt.Errorf("%w: %w", ErrCredentialsNotConfigured, err)
		}
		return domain.Credentials{}, fmt.Errorf("load ppmi password: %w", err)
	}

	creds := domain.Credentials{Login: strings.TrimSpace(login), Password: password}
	if err := creds.Validate(); err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: %w", ErrCredentialsNotConfigured, err)
	}
	return creds, nil
}

// Save stores both secrets; when the password cannot be stored the login
// written just before is rolled back.
func (c *CredentialStore) Save(ctx context.Context, creds domain.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	if err := c.store.Put(ctx, domain.SecretKeyLogin, creds.Login); err != nil {
		return fmt.Errorf("store ppmi login: %w", err)
	}

	if err := c.store.Put(ctx, domain.SecretKeyPassword, creds.Password); err != nil {
		if rollbackErr := c.store.Delete(ctx, domain.SecretKeyLogin); rollbackErr != nil && !errors.Is(rollbackErr, ports.ErrSecretNotFound) {
			return fmt.Errorf("store ppmi password and rollback stored login: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("store ppmi password: %w", err)
	}

	return nil
}

func (c *CredentialStore) Remove(ctx context.Context) error {
	var errs []error
	for _, key := range []string{domain.SecretKeyLogin, domain.SecretKeyPassword} {
		if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ports.ErrSecretNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
