package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/portal"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/livingpark/ppmi-downloader/internal/testutil"
	"github.com/rs/zerolog"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

var testCreds = domain.Credentials{Login: "me@example.com", Password: "hunter2"}

// fakeEndpoint hands out one scripted fakeBrowser.
type fakeEndpoint struct {
	addr      string
	pingFails int
	pings     int
	newErr    error
	browser   *fakeBrowser
	mu        sync.Mutex
}

func (e *fakeEndpoint) Address() string { return e.addr }

func (e *fakeEndpoint) Ping(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pings++
	if e.pings <= e.pingFails {
		return errors.New("connection refused")
	}
	return nil
}

func (e *fakeEndpoint) NewSession(context.Context) (ports.BrowserSession, error) {
	if e.newErr != nil {
		return nil, e.newErr
	}
	return e.browser, nil
}

// fakeBrowser renders every element unless told otherwise. Clicks can run
// hooks that move the page; status texts are served in sequence.
type fakeBrowser struct {
	mu       sync.Mutex
	url      string
	missing  map[string]bool
	elements map[string][]ports.Element
	texts    map[string][]string
	onClick  map[string]func(*fakeBrowser)
	cookies  []*http.Cookie
	log      []string
	closed   int
	closeErr error
	page     string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		missing:  map[string]bool{},
		elements: map[string][]ports.Element{},
		texts:    map[string][]string{},
		onClick:  map[string]func(*fakeBrowser){},
	}
}

// newPortalBrowser scripts a portal on which every plan of site succeeds and
// the export job "job-42" is listed with the given status texts.
func newPortalBrowser(site portal.Site, statuses ...string) *fakeBrowser {
	b := newFakeBrowser()
	b.missing[site.Login.Invalid.String()] = true
	b.onClick[site.Menu.StudyData.String()] = func(b *fakeBrowser) { b.url = site.StudyDataURL + "?project=PPMI" }
	b.onClick[site.Menu.AdvancedSearch.String()] = func(b *fakeBrowser) {
		b.url = "https://ida.loni.usc.edu/pages/access/search.jsp?page=SEARCH&subPage=NEW_ADV_QUERY"
	}
	b.cookies = []*http.Cookie{{Name: "JSESSIONID", Value: "abc"}}
	scriptJob(b, site, "job-42", statuses...)
	return b
}

// scriptJob makes handle the job every trigger creates, reporting statuses.
func scriptJob(b *fakeBrowser, site portal.Site, handle string, statuses ...string) {
	b.texts[site.Exports.Handle.String()] = []string{handle}
	b.texts[site.Exports.Status.WithHandle(handle).String()] = statuses
}

// linkHandle lists hrefs as the download links of handle.
func linkHandle(b *fakeBrowser, handle string, hrefs ...string) {
	elements := make([]ports.Element, 0, len(hrefs))
	for _, href := range hrefs {
		elements = append(elements, ports.Element{Text: "Zip File", Attributes: map[string]string{"href": href}})
	}
	b.elements[testSite().Exports.DownloadLinks.WithHandle(handle).String()] = elements
}

func (b *fakeBrowser) record(format string, args ...any) {
	b.log = append(b.log, fmt.Sprintf(format, args...))
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("navigate %s", url)
	b.url = url
	return nil
}

func (b *fakeBrowser) CurrentURL(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url, nil
}

func (b *fakeBrowser) Click(_ context.Context, target domain.Locator) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.missing[target.String()] {
		return fmt.Errorf("click %s: %w", target, ports.ErrElementNotFound)
	}
	b.record("click %s", target)
	if hook := b.onClick[target.String()]; hook != nil {
		hook(b)
	}
	return nil
}

func (b *fakeBrowser) Check(_ context.Context, target domain.Locator) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.missing[target.String()] {
		return fmt.Errorf("check %s: %w", target, ports.ErrElementNotFound)
	}
	b.record("check %s", target)
	return nil
}

func (b *fakeBrowser) Fill(_ context.Context, target domain.Locator, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.missing[target.String()] {
		return fmt.Errorf("fill %s: %w", target, ports.ErrElementNotFound)
	}
	b.record("fill %s %s", target, value)
	return nil
}

func (b *fakeBrowser) Text(_ context.Context, target domain.Locator) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := b.texts[target.String()]
	if b.missing[target.String()] || len(seq) == 0 {
		return "", fmt.Errorf("text %s: %w", target, ports.ErrElementNotFound)
	}
	text := seq[0]
	if len(seq) > 1 {
		b.texts[target.String()] = seq[1:]
	}
	return text, nil
}

func (b *fakeBrowser) FindAll(_ context.Context, target domain.Locator) ([]ports.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.missing[target.String()] {
		return nil, nil
	}
	if elements, ok := b.elements[target.String()]; ok {
		return elements, nil
	}
	return []ports.Element{{}}, nil
}

func (b *fakeBrowser) HTML(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page != "" {
		return b.page, nil
	}
	return "<html></html>", nil
}

func (b *fakeBrowser) Cookies(context.Context, string) ([]*http.Cookie, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cookies, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return b.closeErr
}

func (b *fakeBrowser) actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

func (b *fakeBrowser) count(prefix string) int {
	n := 0
	for _, entry := range b.actions() {
		if len(entry) >= len(prefix) && entry[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func testSite() portal.Site {
	return portal.Default()
}

func testActionPolicy() ActionPolicy {
	return ActionPolicy{Timeout: 5 * time.Second, Interval: time.Second}
}

func newTestManager(t *testing.T, endpoint *fakeEndpoint, clock ports.Clock) *SessionManager {
	t.Helper()
	return NewSessionManager(endpoint, testSite(), SessionOptions{
		HealthAttempts: 3,
		HealthInterval: time.Second,
		LoginAttempts:  2,
		Action:         testActionPolicy(),
	}, clock, zerolog.Nop())
}

// openTestSession logs into a scripted portal and returns the live session.
func openTestSession(t *testing.T, browser *fakeBrowser) *Session {
	t.Helper()
	manager := newTestManager(t, &fakeEndpoint{addr: "grid:4444", browser: browser}, testutil.NewFakeClock(testStart))
	session, err := manager.Open(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func readyJob(handle string, artifact domain.ArtifactSpec) *domain.ExportJob {
	job := domain.NewExportJob(handle, domain.ActionPlan{Kind: domain.RequestKindImaging, Artifact: artifact}, testStart)
	job.Status = domain.JobReady
	return job
}
