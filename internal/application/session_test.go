package application

import (
	"context"
	"errors"
	"testing"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerOpenLogsIn(t *testing.T) {
	t.Parallel()

	site := testSite()
	browser := newPortalBrowser(site)
	manager := newTestManager(t, &fakeEndpoint{addr: "grid:4444", browser: browser}, testutil.NewFakeClock(testStart))

	session, err := manager.Open(context.Background(), testCreds)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	assert.True(t, session.Alive())
	assert.Equal(t, "grid:4444", session.Endpoint())
	assert.Equal(t, testCreds.Login, session.Login())
	assert.Equal(t, []string{
		"navigate " + site.LoginURL,
		"click " + site.Login.CookieAccept.String(),
		"fill " + site.Login.Email.String() + " " + testCreds.Login,
		"fill " + site.Login.Password.String() + " " + testCreds.Password,
		"click " + site.Login.Submit.String(),
	}, browser.actions())
}

func TestSessionManagerOpenSkipsMissingCookieBanner(t *testing.T) {
	t.Parallel()

	site := testSite()
	browser := newPortalBrowser(site)
	browser.missing[site.Login.CookieAccept.String()] = true

	session := openTestSession(t, browser)
	assert.True(t, session.Alive())
	assert.Zero(t, browser.count("click "+site.Login.CookieAccept.String()))
}

func TestSessionManagerOpenRetriesHealthCheck(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(testStart)
	endpoint := &fakeEndpoint{addr: "grid:4444", pingFails: 2, browser: newPortalBrowser(testSite())}

	session, err := newTestManager(t, endpoint, clock).Open(context.Background(), testCreds)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	assert.Equal(t, 3, endpoint.pings)
}

func TestSessionManagerOpenUnreachableEndpoint(t *testing.T) {
	t.Parallel()

	browser := newPortalBrowser(testSite())
	endpoint := &fakeEndpoint{addr: "grid:4444", pingFails: 10, browser: browser}

	session, err := newTestManager(t, endpoint, testutil.NewFakeClock(testStart)).Open(context.Background(), testCreds)
	require.ErrorIs(t, err, domain.ErrConnection)
	assert.Nil(t, session)
	assert.Equal(t, 3, endpoint.pings)
	assert.Empty(t, browser.actions())
}

func TestSessionManagerOpenBrowserStartFailure(t *testing.T) {
	t.Parallel()

	endpoint := &fakeEndpoint{addr: "grid:4444", newErr: errors.New("no free slots")}

	_, err := newTestManager(t, endpoint, testutil.NewFakeClock(testStart)).Open(context.Background(), testCreds)
	require.ErrorIs(t, err, domain.ErrConnection)
	assert.Contains(t, err.Error(), "no free slots")
}

func TestSessionManagerOpenInvalidLoginFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	site := testSite()
	browser := newPortalBrowser(site)
	delete(browser.missing, site.Login.Invalid.String())

	session, err := newTestManager(t, &fakeEndpoint{addr: "grid:4444", browser: browser}, testutil.NewFakeClock(testStart)).
		Open(context.Background(), testCreds)

	require.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Nil(t, session)
	assert.Equal(t, 1, browser.count("click "+site.Login.Submit.String()))
	assert.Equal(t, 1, browser.closed)
	assert.NotContains(t, err.Error(), testCreds.Password)
}

func TestSessionManagerOpenRetriesWhenLoggedInMarkerMissing(t *testing.T) {
	t.Parallel()

	site := testSite()
	browser := newPortalBrowser(site)
	browser.missing[site.Login.LoggedIn.String()] = true

	session, err := newTestManager(t, &fakeEndpoint{addr: "grid:4444", browser: browser}, testutil.NewFakeClock(testStart)).
		Open(context.Background(), testCreds)

	require.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Nil(t, session)
	assert.Equal(t, 2, browser.count("click "+site.Login.Submit.String()))
	assert.Equal(t, 1, browser.closed)
}

func TestSessionManagerOpenRejectsIncompleteCredentials(t *testing.T) {
	t.Parallel()

	endpoint := &fakeEndpoint{addr: "grid:4444", browser: newPortalBrowser(testSite())}
	_, err := newTestManager(t, endpoint, testutil.NewFakeClock(testStart)).Open(context.Background(), domain.Credentials{Login: "me@example.com"})

	require.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Zero(t, endpoint.pings)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	browser := newPortalBrowser(testSite())
	session := openTestSession(t, browser)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.False(t, session.Alive())
	assert.Equal(t, 1, browser.closed)

	_, err := session.acquire()
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestSessionCloseReportsBrowserErrorOnce(t *testing.T) {
	t.Parallel()

	browser := newPortalBrowser(testSite())
	browser.closeErr = errors.New("websocket already gone")
	session := openTestSession(t, browser)

	require.Error(t, session.Close())
	require.NoError(t, session.Close())
}

func TestSessionRejectsConcurrentOperation(t *testing.T) {
	t.Parallel()

	session := openTestSession(t, newPortalBrowser(testSite()))

	release, err := session.acquire()
	require.NoError(t, err)

	_, err = session.acquire()
	require.ErrorIs(t, err, domain.ErrSessionBusy)

	release()
	release, err = session.acquire()
	require.NoError(t, err)
	release()
}
