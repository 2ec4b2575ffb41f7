package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/livingpark/ppmi-downloader/internal/ports"
	portmocks "github.com/livingpark/ppmi-downloader/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const key = "ppmi/password"

func TestStoreGetUsesPrimaryWhenItSucceeds(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockSecretStore(t)
	fallback := portmocks.NewMockSecretStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, key).Return("from-env", nil).Once()

	value, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestStoreGetWalksBackendsInOrder(t *testing.T) {
	t.Parallel()

	env := portmocks.NewMockSecretStore(t)
	pass := portmocks.NewMockSecretStore(t)
	file := portmocks.NewMockSecretStore(t)
	store := NewStore(env, pass, file)

	env.EXPECT().Get(mock.Anything, key).Return("", ports.ErrSecretNotFound).Once()
	pass.EXPECT().Get(mock.Anything, key).Return("", errors.New("gpg agent locked")).Once()
	file.EXPECT().Get(mock.Anything, key).Return("from-file", nil).Once()

	value, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)
}

func TestStoreGetReportsNotFoundWhenNoBackendHasTheSecret(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockSecretStore(t)
	fallback := portmocks.NewMockSecretStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, key).Return("", ports.ErrSecretNotFound).Once()
	fallback.EXPECT().Get(mock.Anything, key).Return("", ports.ErrSecretNotFound).Once()

	_, err := store.Get(context.Background(), key)
	require.ErrorIs(t, err, ports.ErrSecretNotFound)
}

func TestStoreGetReturnsCombinedErrorWhenBackendsFail(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockSecretStore(t)
	fallback := portmocks.NewMockSecretStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, key).Return("", errors.New("pass failed")).Once()
	fallback.EXPECT().Get(mock.Anything, key).Return("", ports.ErrSecretNotFound).Once()

	_, err := store.Get(context.Background(), key)
	require.Error(t, err)
	assert.ErrorContains(t, err, "backend 1 get failed")
	assert.ErrorContains(t, err, "pass failed")
	assert.ErrorContains(t, err, "backend 2 get failed")
}

func TestStorePutSkipsReadOnlyBackend(t *testing.T) {
	t.Parallel()

	env := portmocks.NewMockSecretStore(t)
	pass := portmocks.NewMockSecretStore(t)
	store := NewStore(env, pass)

	env.EXPECT().Put(mock.Anything, key, "secret").Return(errors.ErrUnsupported).Once()
	pass.EXPECT().Put(mock.Anything, key, "secret").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), key, "secret"))
}

func TestStorePutStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockSecretStore(t)
	fallback := portmocks.NewMockSecretStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Put(mock.Anything, key, "secret").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), key, "secret"))
}

func TestStoreDeleteReachesEveryBackend(t *testing.T) {
	t.Parallel()

	env := portmocks.NewMockSecretStore(t)
	pass := portmocks.NewMockSecretStore(t)
	file := portmocks.NewMockSecretStore(t)
	store := NewStore(env, pass, file)

	env.EXPECT().Delete(mock.Anything, key).Return(errors.ErrUnsupported).Once()
	pass.EXPECT().Delete(mock.Anything, key).Return(ports.ErrSecretNotFound).Once()
	file.EXPECT().Delete(mock.Anything, key).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), key))
}

func TestStoreDeleteReportsRealFailures(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockSecretStore(t)
	fallback := portmocks.NewMockSecretStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Delete(mock.Anything, key).Return(errors.New("disk full")).Once()
	fallback.EXPECT().Delete(mock.Anything, key).Return(nil).Once()

	err := store.Delete(context.Background(), key)
	require.ErrorContains(t, err, "disk full")
}

func TestStoreGetDoesNotFallbackOnCanceledContextError(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockSecretStore(t)
	fallback := portmocks.NewMockSecretStore(t)
	store := NewStore(primary, fallback)

	primary.EXPECT().Get(mock.Anything, key).Return("", context.Canceled).Once()

	_, err := store.Get(context.Background(), key)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewStoreCheckedRejectsMissingBackends(t *testing.T) {
	t.Parallel()

	_, err := NewStoreChecked()
	require.Error(t, err)

	_, err = NewStoreChecked(portmocks.NewMockSecretStore(t), nil)
	require.Error(t, err)
}
