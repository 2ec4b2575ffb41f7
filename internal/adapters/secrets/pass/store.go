// Package pass keeps secrets in the standard unix password manager.
package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/livingpark/ppmi-downloader/internal/ports"
)

// ErrUnavailable means pass is not installed or has no initialised store.
var ErrUnavailable = errors.New("pass command unavailable")

const missingMarker = "is not in the password store"

// pass prints one of these when no gpg-id has been set up yet.
var uninitialisedMarkers = []string{"password store is empty", "You must run:", "pass init"}

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

type Store struct {
	run runFunc
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPassCommand}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	_, err := s.do(ctx, "put", key, value+"\n", "insert", "-m", "-f", key)
	return err
}

// Get returns the first line of the entry, following the pass convention
// of keeping the secret on line one and free-form notes below.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	stdout, err := s.do(ctx, "get", key, "", "show", key)
	if err != nil {
		return "", err
	}

	first, _, _ := strings.Cut(stdout, "\n")
	return strings.TrimSuffix(first, "\r"), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.do(ctx, "delete", key, "", "rm", "-f", key)
	return err
}

func (s *Store) do(ctx context.Context, op, key, input string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stdout, stderr, err := s.run(ctx, input, args...)
	if err != nil {
		return "", classify(op, key, err, stderr)
	}
	return stdout, nil
}

func runPassCommand(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func classify(op string, key string, err error, stderr string) error {
	switch {
	case strings.Contains(stderr, missingMarker):
		return fmt.Errorf("pass %s %q: %w", op, key, ports.ErrSecretNotFound)
	case uninitialised(stderr):
		return fmt.Errorf("pass %s %q: %w: %s", op, key, ErrUnavailable, stderr)
	case stderr == "":
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	default:
		return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
	}
}

func uninitialised(stderr string) bool {
	for _, marker := range uninitialisedMarkers {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}
