package ports

import (
	"context"
	"errors"
	"net/http"

	"github.com/livingpark/ppmi-downloader/internal/domain"
)

// ErrElementNotFound is returned by single-attempt element operations when
// the element is not rendered yet. Callers treat it as transient.
var ErrElementNotFound = errors.New("element not found")

// BrowserEndpoint is one worker of the remote browser-automation pool.
type BrowserEndpoint interface {
	Address() string
	Ping(ctx context.Context) error
	NewSession(ctx context.Context) (BrowserSession, error)
}

type Element struct {
	Text       string
	Attributes map[string]string
}

// BrowserSession performs single attempts; waiting and retrying belong to
// the caller.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Click(ctx context.Context, target domain.Locator) error
	Check(ctx context.Context, target domain.Locator) error
	Fill(ctx context.Context, target domain.Locator, value string) error
	Text(ctx context.Context, target domain.Locator) (string, error)
	FindAll(ctx context.Context, target domain.Locator) ([]Element, error)
	HTML(ctx context.Context) (string, error)
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
	Close() error
}
