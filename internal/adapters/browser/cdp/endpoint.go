// Package cdp drives a remote headless Chrome over the DevTools protocol.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/rs/zerolog"
)

const (
	defaultPort = "9222"
	// LocalHostAlias resolves to this machine's address, for browsers that
	// run in a container sharing the host network.
	LocalHostAlias = "hostname"

	defaultProbeTimeout    = 2 * time.Second
	defaultNavigateTimeout = time.Minute
)

type Options struct {
	// ProbeTimeout bounds a single element lookup; a lookup that runs out of
	// it reports ports.ErrElementNotFound.
	ProbeTimeout    time.Duration
	NavigateTimeout time.Duration
	HTTPClient      *http.Client
}

type Endpoint struct {
	address string
	opts    Options
	logger  zerolog.Logger
}

var _ ports.BrowserEndpoint = (*Endpoint)(nil)

func NewEndpoint(address string, opts Options, logger zerolog.Logger) *Endpoint {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = defaultNavigateTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Endpoint{
		address: strings.TrimSpace(address),
		opts:    opts,
		logger:  logger.With().Str("component", "cdp").Str("endpoint", address).Logger(),
	}
}

func (e *Endpoint) Address() string {
	return e.address
}

type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Ping asks the DevTools HTTP endpoint for its version.
func (e *Endpoint) Ping(ctx context.Context) error {
	base, err := httpBase(e.address)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/version", nil)
	if err != nil {
		return err
	}
	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools version: unexpected status %d", resp.StatusCode)
	}
	var info versionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("devtools version: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return errors.New("devtools version: no websocket debugger url")
	}
	e.logger.Debug().Str("browser", info.Browser).Msg("endpoint healthy")
	return nil
}

// NewSession opens a fresh tab on the remote browser. The tab outlives ctx
// and is released by Close.
func (e *Endpoint) NewSession(ctx context.Context) (ports.BrowserSession, error) {
	wsURL, err := devtoolsURL(e.address)
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), wsURL)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	stop := context.AfterFunc(ctx, cancel)
	err = chromedp.Run(tabCtx, network.Enable())
	if !stop() && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start browser session: %w", err)
	}

	e.logger.Debug().Msg("browser session started")
	return &Session{
		ctx:    tabCtx,
		cancel: cancel,
		opts:   e.opts,
	}, nil
}

// ResolveAddress expands LocalHostAlias (optionally with a port) into this
// machine's first non-loopback IPv4 address.
func ResolveAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		host, port = raw, defaultPort
	}
	if host != LocalHostAlias {
		return raw, nil
	}

	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", LocalHostAlias, err)
	}
	addrs, err := net.LookupIP(name)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	for _, addr := range addrs {
		if ip := addr.To4(); ip != nil && !ip.IsLoopback() {
			return net.JoinHostPort(ip.String(), port), nil
		}
	}
	for _, addr := range addrs {
		if ip := addr.To4(); ip != nil {
			return net.JoinHostPort(ip.String(), port), nil
		}
	}
	return "", fmt.Errorf("resolve %s: no IPv4 address for %s", LocalHostAlias, name)
}

// devtoolsURL turns host:port, http:// or ws:// addresses into the URL the
// remote allocator dials.
func devtoolsURL(address string) (string, error) {
	parsed, err := parseAddress(address)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws", "wss":
		return parsed.String(), nil
	case "https":
		return "wss://" + parsed.Host + parsed.Path, nil
	default:
		return "ws://" + parsed.Host + parsed.Path, nil
	}
}

func httpBase(address string) (string, error) {
	parsed, err := parseAddress(address)
	if err != nil {
		return "", err
	}
	scheme := "http"
	if parsed.Scheme == "wss" || parsed.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + parsed.Host, nil
}

func parseAddress(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("empty browser endpoint address")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	parsed, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", address, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("parse endpoint %q: missing host", address)
	}
	if parsed.Port() == "" {
		parsed.Host = net.JoinHostPort(parsed.Hostname(), defaultPort)
	}
	return parsed, nil
}
