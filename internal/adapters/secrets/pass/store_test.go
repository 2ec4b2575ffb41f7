package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutUsesPassInsert(t *testing.T) {
	t.Parallel()

	called := false
	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			called = true
			assert.Equal(t, context.Background(), ctx)
			assert.Equal(t, []string{"insert", "-m", "-f", "ppmi/password"}, args)
			assert.Equal(t, "hunter2\n", input)
			return "", "", nil
		},
	}

	err := store.Put(context.Background(), "ppmi/password", "hunter2")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStoreGetUsesPassShowAndKeepsFirstLine(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"trailing newline": "hunter2\n",
		"crlf":             "hunter2\r\n",
		"with notes":       "hunter2\nurl: https://ida.loni.usc.edu\n",
		"no newline":       "hunter2",
	}
	for name, output := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := &Store{
				run: func(ctx context.Context, input string, args ...string) (string, string, error) {
					assert.Equal(t, []string{"show", "ppmi/password"}, args)
					assert.Empty(t, input)
					return output, "", nil
				},
			}

			value, err := store.Get(context.Background(), "ppmi/password")
			require.NoError(t, err)
			assert.Equal(t, "hunter2", value)
		})
	}
}

func TestStoreDeleteUsesPassRemove(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"rm", "-f", "ppmi/password"}, args)
			assert.Empty(t, input)
			return "", "", nil
		},
	}

	err := store.Delete(context.Background(), "ppmi/password")
	require.NoError(t, err)
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "entry not found", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), "ppmi/password")
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, "ppmi/password")
	assert.ErrorContains(t, err, "entry not found")
}

func TestStoreGetMissingEntryIsSecretNotFound(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "Error: ppmi/login is not in the password store.", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), "ppmi/login")
	require.ErrorIs(t, err, ports.ErrSecretNotFound)
}

func TestStoreReportsMissingPassBinary(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "", ErrUnavailable
		},
	}

	err := store.Put(context.Background(), "ppmi/login", "me@example.com")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestStoreUninitialisedPassIsUnavailable(t *testing.T) {
	t.Parallel()

	store := &Store{
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "Error: password store is empty. Try \"pass init\".", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), "ppmi/login")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ports.ErrSecretNotFound)
}

func TestStoreSkipsCommandWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &Store{
		run: func(context.Context, string, ...string) (string, string, error) {
			t.Fatal("pass must not run")
			return "", "", nil
		},
	}

	require.ErrorIs(t, store.Delete(ctx, "ppmi/login"), context.Canceled)
}
