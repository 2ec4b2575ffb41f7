package chain

import (
	"context"
	"errors"
	"fmt"

	envstore "github.com/livingpark/ppmi-downloader/internal/adapters/secrets/env"
	filestore "github.com/livingpark/ppmi-downloader/internal/adapters/secrets/file"
	passstore "github.com/livingpark/ppmi-downloader/internal/adapters/secrets/pass"
	"github.com/livingpark/ppmi-downloader/internal/ports"
)

// Store consults its backends in order: reads and writes stop at the first
// backend that succeeds, deletes reach every backend.
type Store struct {
	backends []ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

var errNoBackends = errors.New("secret store chain has no backends")

func NewStore(backends ...ports.SecretStore) *Store {
	store, err := NewStoreChecked(backends...)
	if err != nil {
		panic(err)
	}

	return store
}

func NewStoreChecked(backends ...ports.SecretStore) (*Store, error) {
	if len(backends) == 0 {
		return nil, errNoBackends
	}
	for i, backend := range backends {
		if backend == nil {
			return nil, fmt.Errorf("secret backend %d is nil", i+1)
		}
	}

	return &Store{backends: backends}, nil
}

// NewDefault reads the environment first, then pass, then the credentials
// file under fileRoot.
func NewDefault(fileRoot string) (*Store, error) {
	return NewStoreChecked(envstore.NewStore(), passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		if shouldSkipFallback(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("backend %d put failed: %w", i+1, err))
	}

	return errors.Join(errs...)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	for i, backend := range s.backends {
		value, err := backend.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if shouldSkipFallback(err) {
			return "", err
		}
		errs = append(errs, fmt.Errorf("backend %d get failed: %w", i+1, err))
	}

	if allNotFound(errs) {
		return "", fmt.Errorf("secret %q: %w", key, ports.ErrSecretNotFound)
	}
	return "", errors.Join(errs...)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Delete(ctx, key)
		if err == nil || ignorable(err) {
			continue
		}
		if shouldSkipFallback(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("backend %d delete failed: %w", i+1, err))
	}

	return errors.Join(errs...)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ignorable errors mean the backend holds nothing to act on.
func ignorable(err error) bool {
	return errors.Is(err, ports.ErrSecretNotFound) ||
		errors.Is(err, errors.ErrUnsupported) ||
		errors.Is(err, passstore.ErrUnavailable)
}

func allNotFound(errs []error) bool {
	for _, err := range errs {
		if !ignorable(err) {
			return false
		}
	}
	return true
}
