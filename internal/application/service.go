package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrNoEndpoints = errors.New("no browser endpoints configured")

type ServiceOptions struct {
	Poll PollOptions
	// Extract unpacks imaging archives next to the downloaded zip files.
	Extract     bool
	Parallelism int
}

type Components struct {
	Sessions    []*SessionManager
	Catalog     *RequestCatalog
	Driver      *Driver
	Poller      *Poller
	Downloader  *Downloader
	Credentials *CredentialStore
	CatalogRepo ports.CatalogRepository
	Parser      ports.StudyDataParser
	// CriteriaRepo and SearchParser serve CrawlSearchCriteria.
	CriteriaRepo ports.SearchCriteriaRepository
	SearchParser ports.SearchCriteriaParser
}

// Service runs the resolve, open, submit, wait, fetch pipeline for each
// public download operation on a fresh session.
type Service struct {
	Components
	opts   ServiceOptions
	next   atomic.Uint64
	logger zerolog.Logger
}

func NewService(components Components, opts ServiceOptions, logger zerolog.Logger) *Service {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Service{
		Components: components,
		opts:       opts,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// DownloadMetadata fetches the named study-data tables and returns one CSV
// path per name, in request order.
func (s *Service) DownloadMetadata(ctx context.Context, names []string) ([]string, error) {
	req, err := domain.NewMetadataRequest(names...)
	if err != nil {
		return nil, err
	}

	manager, err := s.pick()
	if err != nil {
		return nil, err
	}
	job, report, err := s.run(ctx, manager, req)
	if err != nil {
		return nil, err
	}

	return s.collectTables(job, report)
}

// Download3DT1Info fetches the CSV describing every 3D T1 acquisition.
func (s *Service) Download3DT1Info(ctx context.Context) (string, error) {
	manager, err := s.pick()
	if err != nil {
		return "", err
	}
	_, report, err := s.run(ctx, manager, domain.NewT1InfoRequest())
	if err != nil {
		return "", err
	}
	return report.Paths()[0], nil
}

// DownloadImagingData fetches the images of the given subjects. Subjects the
// portal shipped nothing for are reported in Missing, not as an error.
func (s *Service) DownloadImagingData(ctx context.Context, subjectIDs []int, format domain.ImageFormat) (*domain.ImagingResult, error) {
	req, err := domain.NewImagingRequest(subjectIDs, format)
	if err != nil {
		return nil, err
	}
	manager, err := s.pick()
	if err != nil {
		return nil, err
	}
	return s.downloadImaging(ctx, manager, req)
}

// DownloadImagingBatches splits the subjects into batches and runs each on
// its own session, spreading sessions over the endpoints round-robin.
func (s *Service) DownloadImagingBatches(ctx context.Context, subjectIDs []int, format domain.ImageFormat, batchSize int) (*domain.ImagingResult, error) {
	all, err := domain.NewImagingRequest(subjectIDs, format)
	if err != nil {
		return nil, err
	}
	if len(s.Sessions) == 0 {
		return nil, ErrNoEndpoints
	}

	batches := chunk(all.SubjectIDs(), batchSize)
	results := make([]*domain.ImagingResult, len(batches))
	errs := make([]error, len(batches))

	var group errgroup.Group
	group.SetLimit(s.opts.Parallelism)
	for i, batch := range batches {
		manager := s.Sessions[i%len(s.Sessions)]
		group.Go(func() error {
			req, err := domain.NewImagingRequest(batch, format)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = s.downloadImaging(ctx, manager, req)
			if errs[i] != nil {
				s.logger.Warn().Int("batch", i+1).Str("endpoint", manager.Address()).Err(errs[i]).Msg("imaging batch failed")
			}
			return nil
		})
	}
	_ = group.Wait()

	merged := &domain.ImagingResult{}
	covered := make(map[int]struct{})
	var failures []error
	for i, result := range results {
		if errs[i] != nil {
			failures = append(failures, fmt.Errorf("batch %d: %w", i+1, errs[i]))
			continue
		}
		merged.Archives = append(merged.Archives, result.Archives...)
		merged.Failed = append(merged.Failed, result.Failed...)
		for _, id := range result.Covered {
			covered[id] = struct{}{}
		}
	}
	merged.Covered, merged.Missing = domain.SubjectCoverage(all.SubjectIDs(), covered)

	if len(failures) == len(batches) {
		return merged, errors.Join(failures...)
	}
	if err := ctx.Err(); err != nil {
		return merged, err
	}
	return merged, nil
}

// CrawlCatalog reads every table offered on the Study Data page, persists the
// result and makes it available to metadata requests.
func (s *Service) CrawlCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	if s.Parser == nil || s.CatalogRepo == nil {
		return nil, errors.New("catalog crawl is not configured")
	}
	manager, err := s.pick()
	if err != nil {
		return nil, err
	}

	html, err := s.pageHTML(ctx, manager, s.Catalog.studyDataSteps())
	if err != nil {
		return nil, fmt.Errorf("read study data page: %w", err)
	}

	crawled, err := s.Parser.Parse(html)
	if err != nil {
		return nil, fmt.Errorf("parse study data page: %w", err)
	}
	if len(crawled) == 0 {
		return nil, errors.New("study data page lists no tables")
	}

	previous, err := s.CatalogRepo.Load(ctx)
	if err != nil && !errors.Is(err, domain.ErrCatalogMissing) {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	crawled = keepRealNames(crawled, previous)

	if err := s.CatalogRepo.Save(ctx, crawled); err != nil {
		return nil, fmt.Errorf("save catalog: %w", err)
	}
	s.Catalog.tables.Merge(crawled...)
	s.logger.Info().Int("tables", len(crawled)).Msg("catalog crawled")

	return crawled, nil
}

// CrawlSearchCriteria reads the criteria checkboxes of the Advanced Image
// Search page and persists them.
func (s *Service) CrawlSearchCriteria(ctx context.Context) ([]domain.SearchCriterion, error) {
	if s.SearchParser == nil || s.CriteriaRepo == nil {
		return nil, errors.New("search criteria crawl is not configured")
	}
	manager, err := s.pick()
	if err != nil {
		return nil, err
	}

	html, err := s.pageHTML(ctx, manager, s.Catalog.advancedSearchSteps())
	if err != nil {
		return nil, fmt.Errorf("read advanced search page: %w", err)
	}

	criteria, err := s.SearchParser.Parse(html)
	if err != nil {
		return nil, fmt.Errorf("parse advanced search page: %w", err)
	}
	if len(criteria) == 0 {
		return nil, errors.New("advanced search page lists no criteria")
	}

	if err := s.CriteriaRepo.SaveCriteria(ctx, criteria); err != nil {
		return nil, fmt.Errorf("save search criteria: %w", err)
	}
	s.logger.Info().Int("criteria", len(criteria)).Msg("search criteria crawled")

	return criteria, nil
}

// pageHTML runs steps on a fresh session and returns the page they end on.
func (s *Service) pageHTML(ctx context.Context, manager *SessionManager, steps []domain.Action) (string, error) {
	var html string
	err := s.withSession(ctx, manager, func(session *Session) error {
		release, err := session.acquire()
		if err != nil {
			return err
		}
		defer release()

		runner := session.runner(s.Driver.policy.waitPolicy(s.Driver.clock))
		if err := runner.runAll(ctx, steps); err != nil {
			return err
		}
		html, err = session.browser.HTML(ctx)
		return err
	})
	return html, err
}

// VerifyLogin opens and closes a session with the stored credentials.
func (s *Service) VerifyLogin(ctx context.Context) error {
	manager, err := s.pick()
	if err != nil {
		return err
	}
	return s.withSession(ctx, manager, func(*Session) error { return nil })
}

type EndpointHealth struct {
	Address string
	Err     error
}

// CheckGrid pings every configured endpoint concurrently.
func (s *Service) CheckGrid(ctx context.Context) []EndpointHealth {
	health := make([]EndpointHealth, len(s.Sessions))

	var group errgroup.Group
	group.SetLimit(len(s.Sessions) + 1)
	for i, manager := range s.Sessions {
		group.Go(func() error {
			health[i] = EndpointHealth{Address: manager.Address(), Err: manager.Ping(ctx)}
			return nil
		})
	}
	_ = group.Wait()

	return health
}

func (s *Service) pick() (*SessionManager, error) {
	if len(s.Sessions) == 0 {
		return nil, ErrNoEndpoints
	}
	n := s.next.Add(1) - 1
	return s.Sessions[n%uint64(len(s.Sessions))], nil
}

func (s *Service) withSession(ctx context.Context, manager *SessionManager, fn func(*Session) error) (err error) {
	creds, err := s.Credentials.Load(ctx)
	if err != nil {
		return err
	}

	session, err := manager.Open(ctx, creds)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return fn(session)
}

func (s *Service) run(ctx context.Context, manager *SessionManager, req domain.Request) (*domain.ExportJob, *domain.FetchReport, error) {
	plan, err := s.Catalog.Resolve(req)
	if err != nil {
		return nil, nil, err
	}

	var (
		job    *domain.ExportJob
		report *domain.FetchReport
	)
	err = s.withSession(ctx, manager, func(session *Session) error {
		submitted, err := s.Driver.Submit(ctx, session, plan)
		if err != nil {
			return err
		}
		job = submitted

		if _, err := s.Poller.Wait(ctx, session, job, s.opts.Poll); err != nil {
			return err
		}

		report, err = s.Downloader.Fetch(ctx, session, job)
		return err
	})
	if err != nil {
		return job, report, fmt.Errorf("%s: %w", plan.Label, err)
	}
	return job, report, nil
}

func (s *Service) downloadImaging(ctx context.Context, manager *SessionManager, req domain.ImagingRequest) (*domain.ImagingResult, error) {
	job, report, err := s.run(ctx, manager, req)
	if err != nil {
		return nil, err
	}

	result := &domain.ImagingResult{Failed: report.Failed()}
	covered := make(map[int]struct{})
	for _, part := range report.Parts {
		if part.Err != nil || part.Artifact == nil {
			continue
		}
		subjects, err := s.openImaging(part.Artifact.Path)
		if err != nil {
			part.Err = &domain.JobError{Kind: domain.ErrIncompleteDownload, Op: "read archive", Handle: job.Handle, Err: err}
			result.Failed = append(result.Failed, part)
			s.logger.Warn().Int("part", part.Index).Str("job", job.Handle).Err(err).Msg("archive unusable")
			continue
		}
		result.Archives = append(result.Archives, part.Artifact.Path)
		for id := range subjects {
			covered[id] = struct{}{}
		}
	}
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Index < result.Failed[j].Index })
	result.Covered, result.Missing = domain.SubjectCoverage(job.Subjects, covered)
	if len(result.Archives) == 0 {
		return result, &domain.JobError{Kind: domain.ErrIncompleteDownload, Op: "read archive", Handle: job.Handle, Err: errors.New("no readable imaging archive")}
	}

	if len(result.Missing) > 0 {
		s.logger.Warn().Ints("missing", result.Missing).Str("job", job.Handle).Msg("subjects without images")
	}
	return result, nil
}

// openImaging lists the subjects of one imaging archive and unpacks it when
// extraction is enabled.
func (s *Service) openImaging(archive string) (map[int]struct{}, error) {
	subjects, err := archivedSubjects(archive)
	if err != nil {
		return nil, err
	}
	if s.opts.Extract {
		if _, err := extractZip(archive, filepath.Dir(archive)); err != nil {
			return nil, err
		}
	}
	return subjects, nil
}

// collectTables maps the downloaded artifacts to one CSV per requested
// table, unpacking zip bundles first.
func (s *Service) collectTables(job *domain.ExportJob, report *domain.FetchReport) ([]string, error) {
	dir := s.Downloader.Dir()
	files := make(map[string]string)
	csvs := make([]string, 0)
	for _, path := range report.Paths() {
		if strings.EqualFold(filepath.Ext(path), ".zip") {
			extracted, err := extractZip(path, dir)
			if err != nil {
				return nil, err
			}
			for _, file := range extracted {
				files[filepath.Base(file)] = file
			}
			continue
		}
		csvs = append(csvs, path)
	}

	if len(job.Tables) == 1 && len(csvs) == 1 && len(files) == 0 {
		target := filepath.Join(dir, job.Tables[0].FileName())
		if err := os.Rename(csvs[0], target); err != nil {
			return nil, fmt.Errorf("rename %s: %w", filepath.Base(csvs[0]), err)
		}
		return []string{target}, nil
	}
	for _, path := range csvs {
		files[filepath.Base(path)] = path
	}

	paths := make([]string, 0, len(job.Tables))
	missing := make([]string, 0)
	for _, entry := range job.Tables {
		path, ok := files[entry.FileName()]
		if !ok {
			missing = append(missing, entry.FileName())
			continue
		}
		paths = append(paths, path)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return paths, &domain.JobError{
			Kind:   domain.ErrIncompleteDownload,
			Op:     "collect tables",
			Handle: job.Handle,
			Err:    fmt.Errorf("missing from download: %s", strings.Join(missing, ", ")),
		}
	}
	return paths, nil
}

func keepRealNames(crawled, previous []domain.CatalogEntry) []domain.CatalogEntry {
	realNames := make(map[string]string, len(previous))
	for _, entry := range previous {
		if entry.RealName != "" {
			realNames[entry.Name] = entry.RealName
		}
	}
	for i := range crawled {
		if crawled[i].RealName == "" {
			crawled[i].RealName = realNames[crawled[i].Name]
		}
	}
	return crawled
}

func chunk(ids []int, size int) [][]int {
	if size <= 0 || size >= len(ids) {
		return [][]int{ids}
	}
	batches := make([][]int, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
