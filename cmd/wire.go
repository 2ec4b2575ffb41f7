package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	cdpbrowser "github.com/livingpark/ppmi-downloader/internal/adapters/browser/cdp"
	"github.com/livingpark/ppmi-downloader/internal/adapters/crawl"
	"github.com/livingpark/ppmi-downloader/internal/adapters/render/report"
	tomlrepo "github.com/livingpark/ppmi-downloader/internal/adapters/repo/toml"
	chainstore "github.com/livingpark/ppmi-downloader/internal/adapters/secrets/chain"
	envstore "github.com/livingpark/ppmi-downloader/internal/adapters/secrets/env"
	filestore "github.com/livingpark/ppmi-downloader/internal/adapters/secrets/file"
	passstore "github.com/livingpark/ppmi-downloader/internal/adapters/secrets/pass"
	"github.com/livingpark/ppmi-downloader/internal/application"
	"github.com/livingpark/ppmi-downloader/internal/config"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/logging"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// remoteEnv names the browser endpoint used by containerised runs; it wins
// over the configured grid.
const remoteEnv = "PPMI_SINGULARITY_SELENIUM_REMOTE"

type app struct {
	cfg          config.Config
	logger       zerolog.Logger
	tables       *domain.Catalog
	catalogRepo  ports.CatalogRepository
	criteriaRepo ports.SearchCriteriaRepository
	credentials  *application.CredentialStore
	renderer     func(report.Report, report.RenderOptions) (string, error)
	clock        ports.Clock
}

func wireApp() (*app, error) {
	v := viper.New()
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire catalog repository: %w", err)
	}

	secretStore, err := wireSecretStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire secret store: %w", err)
	}

	return &app{
		cfg:          cfg,
		logger:       logger,
		tables:       domain.DefaultCatalog(),
		catalogRepo:  repo,
		criteriaRepo: repo,
		credentials:  application.NewCredentialStore(secretStore),
		renderer:     report.Render,
		clock:        ports.SystemClock{},
	}, nil
}

func wireSecretStore(cfg config.Config) (ports.SecretStore, error) {
	switch cfg.SecretsBackend {
	case config.SecretsEnv:
		return envstore.NewStore(), nil
	case config.SecretsPass:
		return passstore.NewStore(), nil
	case config.SecretsFile:
		return filestore.NewStore(cfg.SecretsDir), nil
	default:
		return chainstore.NewDefault(cfg.SecretsDir)
	}
}

// loadTables merges the crawled catalog, when one was saved, over the
// built-in tables.
func (a *app) loadTables(ctx context.Context) (*domain.Catalog, error) {
	entries, err := a.catalogRepo.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCatalogMissing) {
			return a.tables, nil
		}
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	a.tables.Merge(entries...)
	return a.tables, nil
}

// addresses returns the browser endpoints to drive, with the local-host
// alias resolved.
func (a *app) addresses() ([]string, error) {
	raw := a.cfg.Grid.Addresses()
	if remote := envOrDefault(remoteEnv, ""); remote != "" {
		raw = []string{remote}
	}

	resolved := make([]string, 0, len(raw))
	for _, address := range raw {
		address, err := cdpbrowser.ResolveAddress(address)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, address)
	}
	return resolved, nil
}

// newService builds the download pipeline. A non-empty dir overrides the
// configured download directory.
func (a *app) newService(ctx context.Context, dir string) (*application.Service, error) {
	if dir == "" {
		dir = a.cfg.DownloadDir
	}

	addresses, err := a.addresses()
	if err != nil {
		return nil, fmt.Errorf("resolve browser endpoints: %w", err)
	}
	tables, err := a.loadTables(ctx)
	if err != nil {
		return nil, err
	}

	action := application.ActionPolicy{Timeout: a.cfg.ActionTimeout, Interval: a.cfg.ActionInterval}
	managers := make([]*application.SessionManager, 0, len(addresses))
	for _, address := range addresses {
		endpoint := cdpbrowser.NewEndpoint(address, cdpbrowser.Options{}, a.logger)
		managers = append(managers, application.NewSessionManager(endpoint, a.cfg.Site, application.SessionOptions{
			HealthAttempts: a.cfg.Grid.HealthAttempts,
			HealthInterval: a.cfg.Grid.HealthInterval,
			LoginAttempts:  a.cfg.LoginAttempts,
			Action:         action,
		}, a.clock, a.logger))
	}

	return application.NewService(application.Components{
		Sessions: managers,
		Catalog:  application.NewRequestCatalog(a.cfg.Site, tables),
		Driver:   application.NewDriver(action, a.clock, a.logger),
		Poller:   application.NewPoller(a.clock, a.logger),
		Downloader: application.NewDownloader(application.DownloaderOptions{
			Dir:      dir,
			Attempts: a.cfg.DownloadRetries,
		}, a.clock, a.logger),
		Credentials:  a.credentials,
		CatalogRepo:  a.catalogRepo,
		Parser:       crawl.StudyDataParser{},
		CriteriaRepo: a.criteriaRepo,
		SearchParser: crawl.AdvancedSearchParser{},
	}, application.ServiceOptions{
		Poll: application.PollOptions{
			MaxWait:     a.cfg.Poll.MaxWait,
			Interval:    a.cfg.Poll.Interval,
			MaxInterval: a.cfg.Poll.MaxInterval,
			Backoff:     a.cfg.Poll.Backoff,
		},
		Extract:     a.cfg.Extract,
		Parallelism: a.cfg.Grid.Parallelism,
	}, a.logger), nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
