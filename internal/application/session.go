package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/portal"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/livingpark/ppmi-downloader/internal/waitfor"
	"github.com/rs/zerolog"
)

var errInvalidLogin = errors.New("portal reported invalid login")

type SessionOptions struct {
	HealthAttempts uint
	HealthInterval time.Duration
	LoginAttempts  uint
	Action         ActionPolicy
}

// SessionManager opens authenticated portal sessions on one browser endpoint.
type SessionManager struct {
	endpoint ports.BrowserEndpoint
	site     portal.Site
	opts     SessionOptions
	clock    ports.Clock
	logger   zerolog.Logger
}

func NewSessionManager(endpoint ports.BrowserEndpoint, site portal.Site, opts SessionOptions, clock ports.Clock, logger zerolog.Logger) *SessionManager {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if opts.HealthAttempts == 0 {
		opts.HealthAttempts = 1
	}
	if opts.LoginAttempts == 0 {
		opts.LoginAttempts = 1
	}

	return &SessionManager{
		endpoint: endpoint,
		site:     site,
		opts:     opts,
		clock:    clock,
		logger:   logger.With().Str("component", "session").Str("endpoint", endpoint.Address()).Logger(),
	}
}

func (m *SessionManager) Address() string {
	return m.endpoint.Address()
}

// Ping health-checks the endpoint with the configured retry budget.
func (m *SessionManager) Ping(ctx context.Context) error {
	var lastErr error
	err := waitfor.Until(ctx, waitfor.Policy{
		Interval: m.opts.HealthInterval,
		Attempts: m.opts.HealthAttempts,
		Clock:    m.clock,
	}, func(ctx context.Context) (bool, error) {
		if err := m.endpoint.Ping(ctx); err != nil {
			lastErr = err
			m.logger.Debug().Err(err).Msg("endpoint not ready")
			return false, nil
		}
		return true, nil
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrConnection, m.endpoint.Address(), lastErr)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrConnection, m.endpoint.Address(), err)
}

// Open health-checks the endpoint, starts a browser session and logs in.
// On failure no Session is returned and the browser session is released.
func (m *SessionManager) Open(ctx context.Context, creds domain.Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	if err := m.Ping(ctx); err != nil {
		return nil, err
	}

	browser, err := m.endpoint.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: start browser session on %s: %w", domain.ErrConnection, m.endpoint.Address(), err)
	}

	if err := m.login(ctx, browser, creds); err != nil {
		if closeErr := browser.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("release browser session: %w", closeErr))
		}
		return nil, err
	}

	m.logger.Info().Object("user", creds).Msg("logged in")

	return &Session{
		endpoint: m.endpoint.Address(),
		login:    creds.Login,
		browser:  browser,
		site:     m.site,
		logger:   m.logger.With().Str("user", creds.Login).Logger(),
	}, nil
}

func (m *SessionManager) login(ctx context.Context, browser ports.BrowserSession, creds domain.Credentials) error {
	runner := actionRunner{browser: browser, policy: m.opts.Action.waitPolicy(m.clock), logger: m.logger}
	page := m.site.Login

	var lastErr error
	for attempt := uint(1); attempt <= m.opts.LoginAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := m.loginOnce(ctx, runner, page, creds)
		if err == nil {
			return nil
		}
		if errors.Is(err, errInvalidLogin) {
			return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		if !errors.Is(err, domain.ErrNavigation) {
			return fmt.Errorf("%w: %w", domain.ErrConnection, err)
		}

		lastErr = err
		m.logger.Warn().Uint("attempt", attempt).Err(err).Msg("login attempt did not reach the logged-in page")
	}

	return fmt.Errorf("%w: no logged-in marker after %d attempts: %w", domain.ErrAuthentication, m.opts.LoginAttempts, lastErr)
}

func (m *SessionManager) loginOnce(ctx context.Context, runner actionRunner, page portal.LoginPage, creds domain.Credentials) error {
	if err := runner.run(ctx, domain.Action{Op: domain.OpNavigate, URL: m.site.LoginURL}); err != nil {
		return err
	}

	if !page.CookieAccept.IsZero() {
		if err := runner.browser.Click(ctx, page.CookieAccept); err != nil && !errors.Is(err, ports.ErrElementNotFound) {
			return err
		}
	}

	steps := []domain.Action{
		{Op: domain.OpFill, Target: page.Email, Value: creds.Login, Description: "login email"},
		{Op: domain.OpFill, Target: page.Password, Value: creds.Password, Description: "login password"},
		{Op: domain.OpClick, Target: page.Submit, Description: "login submit"},
	}
	if err := runner.runAll(ctx, steps); err != nil {
		return err
	}

	err := waitfor.Until(ctx, runner.policy, func(ctx context.Context) (bool, error) {
		if !page.Invalid.IsZero() {
			rejected, err := runner.present(ctx, page.Invalid)
			if err != nil {
				return false, err
			}
			if rejected {
				return false, errInvalidLogin
			}
		}
		return runner.present(ctx, page.LoggedIn)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errInvalidLogin):
		return err
	case isWaitFailure(err):
		return domain.NewJobError(domain.ErrNavigation, "await logged-in page", err)
	default:
		return err
	}
}

// Session is one authenticated browser session. It runs one workflow at a
// time; a concurrent operation fails with domain.ErrSessionBusy.
type Session struct {
	endpoint string
	login    string
	browser  ports.BrowserSession
	site     portal.Site
	logger   zerolog.Logger

	busy      sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *Session) Endpoint() string { return s.endpoint }
func (s *Session) Login() string    { return s.login }

func (s *Session) Alive() bool {
	return s != nil && !s.closed.Load()
}

// Close releases the browser session. Calling it again is a no-op and
// returns nil.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if closeErr := s.browser.Close(); closeErr != nil {
			err = fmt.Errorf("close browser session: %w", closeErr)
			return
		}
		s.logger.Debug().Msg("session closed")
	})
	return err
}

// acquire claims the session for one operation.
func (s *Session) acquire() (func(), error) {
	if !s.Alive() {
		return nil, domain.ErrSessionClosed
	}
	if !s.busy.TryLock() {
		return nil, domain.ErrSessionBusy
	}
	return s.busy.Unlock, nil
}

func (s *Session) runner(policy waitfor.Policy) actionRunner {
	return actionRunner{browser: s.browser, policy: policy, logger: s.logger}
}
