package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
)

// Session is one tab on the remote browser. Every method makes a single
// attempt; a missing element yields ports.ErrElementNotFound.
type Session struct {
	ctx    context.Context
	cancel func()
	opts   Options

	closeOnce sync.Once
	closeErr  error
}

var _ ports.BrowserSession = (*Session)(nil)

func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, done := s.bind(ctx, s.opts.NavigateTimeout)
	defer done()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, s.cause(ctx, err))
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	runCtx, done := s.bind(ctx, s.opts.ProbeTimeout)
	defer done()
	var location string
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", s.cause(ctx, err))
	}
	return location, nil
}

func (s *Session) Click(ctx context.Context, target domain.Locator) error {
	return s.withNodes(ctx, "click", target, func(runCtx context.Context, nodes []*cdp.Node) error {
		return chromedp.Run(runCtx, chromedp.MouseClickNode(nodes[0]))
	})
}

// Check ticks the first matching checkbox unless it already is.
func (s *Session) Check(ctx context.Context, target domain.Locator) error {
	return s.withNodes(ctx, "check", target, func(runCtx context.Context, nodes []*cdp.Node) error {
		var checked bool
		if err := chromedp.Run(runCtx, chromedp.JavascriptAttribute(nodeIDs(nodes[:1]), "checked", &checked, chromedp.ByNodeID)); err != nil {
			return err
		}
		if checked {
			return nil
		}
		return chromedp.Run(runCtx, chromedp.MouseClickNode(nodes[0]))
	})
}

func (s *Session) Fill(ctx context.Context, target domain.Locator, value string) error {
	return s.withNodes(ctx, "fill", target, func(runCtx context.Context, nodes []*cdp.Node) error {
		ids := nodeIDs(nodes[:1])
		return chromedp.Run(runCtx,
			chromedp.Focus(ids, chromedp.ByNodeID),
			chromedp.SetValue(ids, "", chromedp.ByNodeID),
			chromedp.SendKeys(ids, value, chromedp.ByNodeID),
		)
	})
}

func (s *Session) Text(ctx context.Context, target domain.Locator) (string, error) {
	var text string
	err := s.withNodes(ctx, "read", target, func(runCtx context.Context, nodes []*cdp.Node) error {
		return chromedp.Run(runCtx, chromedp.TextContent(nodeIDs(nodes[:1]), &text, chromedp.ByNodeID))
	})
	return strings.TrimSpace(text), err
}

// FindAll returns every match, or none, without waiting for one to appear.
func (s *Session) FindAll(ctx context.Context, target domain.Locator) ([]ports.Element, error) {
	q, err := toQuery(target)
	if err != nil {
		return nil, err
	}
	runCtx, done := s.bind(ctx, s.opts.ProbeTimeout)
	defer done()

	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(q.selector, &nodes, q.by, chromedp.AtLeast(0))); err != nil {
		if errors.Is(s.cause(ctx, err), ports.ErrElementNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s: %w", target, s.cause(ctx, err))
	}

	elements := make([]ports.Element, 0, len(nodes))
	for _, node := range nodes {
		var text string
		if err := chromedp.Run(runCtx, chromedp.TextContent(nodeIDs([]*cdp.Node{node}), &text, chromedp.ByNodeID)); err != nil {
			return nil, fmt.Errorf("read %s: %w", target, s.cause(ctx, err))
		}
		elements = append(elements, ports.Element{Text: strings.TrimSpace(text), Attributes: attributes(node)})
	}
	return elements, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	runCtx, done := s.bind(ctx, s.opts.NavigateTimeout)
	defer done()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", s.cause(ctx, err))
	}
	return html, nil
}

// Cookies returns the browser cookies that apply to url.
func (s *Session) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	runCtx, done := s.bind(ctx, s.opts.ProbeTimeout)
	defer done()

	var cookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{url}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", s.cause(ctx, err))
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

// Close closes the tab and drops the connection to the remote browser.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.ctx)
		s.cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("close browser tab: %w", err)
		}
	})
	return s.closeErr
}

// bind derives a context from the tab that also ends with ctx or after timeout.
func (s *Session) bind(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) withNodes(ctx context.Context, verb string, target domain.Locator, fn func(context.Context, []*cdp.Node) error) error {
	q, err := toQuery(target)
	if err != nil {
		return err
	}
	runCtx, done := s.bind(ctx, s.opts.ProbeTimeout)
	defer done()

	var nodes []*cdp.Node
	err = chromedp.Run(runCtx, chromedp.Nodes(q.selector, &nodes, q.by, chromedp.AtLeast(0)))
	if err == nil && len(nodes) == 0 {
		err = ports.ErrElementNotFound
	}
	if err == nil {
		err = fn(runCtx, nodes)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb, target, s.cause(ctx, err))
	}
	return nil
}

// cause reports the caller's cancellation as is and a spent probe budget as
// a missing element.
func (s *Session) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ports.ErrElementNotFound
	}
	return err
}

func nodeIDs(nodes []*cdp.Node) []cdp.NodeID {
	ids := make([]cdp.NodeID, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.NodeID)
	}
	return ids
}

func attributes(node *cdp.Node) map[string]string {
	attrs := make(map[string]string, len(node.Attributes)/2)
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		attrs[node.Attributes[i]] = node.Attributes[i+1]
	}
	return attrs
}
