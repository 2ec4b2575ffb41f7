package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/rs/zerolog"
)

const (
	partFilePattern     = ".ppmi-*.part"
	downloadDirMode     = 0o755
	defaultPartAttempts = 3
)

type DownloaderOptions struct {
	Dir        string
	Attempts   uint
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// Downloader retrieves the files of a READY job with the session's cookies.
type Downloader struct {
	opts   DownloaderOptions
	clock  ports.Clock
	logger zerolog.Logger
}

func NewDownloader(opts DownloaderOptions, clock ports.Clock, logger zerolog.Logger) *Downloader {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if opts.Attempts == 0 {
		opts.Attempts = defaultPartAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Downloader{opts: opts, clock: clock, logger: logger.With().Str("component", "downloader").Logger()}
}

func (d *Downloader) Dir() string {
	return d.opts.Dir
}

// Fetch downloads every part listed for the job. It fails without any I/O
// unless the job is READY, and errors only when no part could be retrieved.
func (d *Downloader) Fetch(ctx context.Context, session *Session, job *domain.ExportJob) (*domain.FetchReport, error) {
	if job == nil || job.Status != domain.JobReady {
		status := domain.JobStatus("")
		if job != nil {
			status = job.Status
		}
		return nil, fmt.Errorf("%w: fetch requires a READY job, got %q", domain.ErrPrecondition, status)
	}

	release, err := session.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	logger := d.logger.With().Str("job", job.Handle).Logger()

	links, err := d.links(ctx, session, job)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := *d.opts.HTTPClient
	client.Jar = jar

	if err := os.MkdirAll(d.opts.Dir, downloadDirMode); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	report := &domain.FetchReport{JobHandle: job.Handle, Parts: make([]domain.PartResult, 0, len(links))}
	for i, link := range links {
		part := domain.PartResult{Index: i + 1, URL: link.String()}
		if err := d.authorize(ctx, session, jar, link); err != nil {
			part.Err = err
			report.Parts = append(report.Parts, part)
			continue
		}

		target := d.targetName(job, part.Index, len(links))
		artifact, err := d.fetchPart(ctx, &client, job, link, target)
		if err != nil {
			part.Err = err
			logger.Warn().Int("part", part.Index).Err(err).Msg("part failed")
		} else {
			artifact.Part = part.Index
			part.Artifact = artifact
			logger.Info().Int("part", part.Index).Str("path", artifact.Path).Int64("bytes", artifact.Size).Msg("part downloaded")
		}
		report.Parts = append(report.Parts, part)
	}

	if len(report.Succeeded()) == 0 {
		causes := make([]error, 0, len(report.Parts))
		for _, part := range report.Failed() {
			causes = append(causes, fmt.Errorf("part %d: %w", part.Index, part.Err))
		}
		return report, &domain.JobError{Kind: domain.ErrIncompleteDownload, Op: "fetch", Handle: job.Handle, Err: errors.Join(causes...)}
	}

	return report, nil
}

// links lists the download URLs the status page shows for the job.
func (d *Downloader) links(ctx context.Context, session *Session, job *domain.ExportJob) ([]*url.URL, error) {
	exports := session.site.Exports
	if err := session.browser.Navigate(ctx, session.site.ExportsURL); err != nil {
		return nil, domain.NewJobError(domain.ErrNavigation, "open export status page", err)
	}
	base, err := session.browser.CurrentURL(ctx)
	if err != nil {
		return nil, domain.NewJobError(domain.ErrNavigation, "read export status url", err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse export status url: %w", err)
	}

	elements, err := session.browser.FindAll(ctx, exports.DownloadLinks.WithHandle(job.Handle))
	if err != nil && !errors.Is(err, ports.ErrElementNotFound) {
		return nil, domain.NewJobError(domain.ErrNavigation, "list download links", err)
	}

	seen := make(map[string]struct{}, len(elements))
	links := make([]*url.URL, 0, len(elements))
	for _, element := range elements {
		href := strings.TrimSpace(element.Attributes["href"])
		if href == "" {
			continue
		}
		link, err := baseURL.Parse(href)
		if err != nil {
			continue
		}
		if _, ok := seen[link.String()]; ok {
			continue
		}
		seen[link.String()] = struct{}{}
		links = append(links, link)
	}

	if len(links) == 0 {
		return nil, &domain.JobError{Kind: domain.ErrIncompleteDownload, Op: "fetch", Handle: job.Handle, Err: errors.New("no download links on the status page")}
	}
	return links, nil
}

func (d *Downloader) authorize(ctx context.Context, session *Session, jar http.CookieJar, link *url.URL) error {
	cookies, err := session.browser.Cookies(ctx, link.String())
	if err != nil {
		return fmt.Errorf("read session cookies: %w", err)
	}
	jar.SetCookies(link, cookies)
	return nil
}

func (d *Downloader) targetName(job *domain.ExportJob, part, total int) string {
	if total > 1 {
		return fmt.Sprintf("%s_part%d", job.FileStem(), part)
	}
	return job.FileStem()
}

func (d *Downloader) fetchPart(ctx context.Context, client *http.Client, job *domain.ExportJob, link *url.URL, stem string) (*domain.Artifact, error) {
	var artifact *domain.Artifact
	err := retry.Do(
		func() error {
			var err error
			artifact, err = d.download(ctx, client, job, link, stem)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(d.opts.Attempts),
		retry.Delay(d.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.WithTimer(d.clock),
	)
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func (d *Downloader) download(ctx context.Context, client *http.Client, job *domain.ExportJob, link *url.URL, stem string) (*domain.Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create download request: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", link.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("download %s: status %d", link.Redacted(), resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, retry.Unrecoverable(err)
	}

	name := sourceName(resp, link)
	if !job.Artifact.Accepts(name) {
		return nil, retry.Unrecoverable(fmt.Errorf("%w: unexpected file type %q", domain.ErrIncompleteDownload, name))
	}

	tempFile, err := os.CreateTemp(d.opts.Dir, partFilePattern)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create temp file: %w", err))
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	size, err := io.Copy(tempFile, resp.Body)
	if err != nil {
		_ = tempFile.Close()
		return nil, fmt.Errorf("%w: stream %s: %w", domain.ErrIncompleteDownload, link.Redacted(), err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrIncompleteDownload, name)
	}
	if resp.ContentLength > 0 && size != resp.ContentLength {
		return nil, fmt.Errorf("%w: got %d of %d bytes", domain.ErrIncompleteDownload, size, resp.ContentLength)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".zip" {
		if err := checkArchive(tempName); err != nil {
			return nil, retry.Unrecoverable(fmt.Errorf("%w: %s is not a readable archive: %w", domain.ErrIncompleteDownload, name, err))
		}
	}

	finalPath := filepath.Join(d.opts.Dir, stem+ext)
	if err := os.Rename(tempName, finalPath); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("move download into place: %w", err))
	}
	cleanup = false

	return &domain.Artifact{
		Path:      finalPath,
		Size:      size,
		JobHandle: job.Handle,
		SourceURL: link.Redacted(),
	}, nil
}

// sourceName prefers the Content-Disposition filename over the URL path.
func sourceName(resp *http.Response, link *url.URL) string {
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return filepath.Base(params["filename"])
		}
	}
	return path.Base(link.Path)
}
