package container

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/roi-gridview-go/internal/analyzer"
	"github.com/anime-shed/roi-gridview-go/internal/cache"
	"github.com/anime-shed/roi-gridview-go/internal/config"
	"github.com/anime-shed/roi-gridview-go/internal/factory"
	"github.com/anime-shed/roi-gridview-go/internal/fetcher"
	"github.com/anime-shed/roi-gridview-go/internal/logger"
	"github.com/anime-shed/roi-gridview-go/internal/observer"
	"github.com/anime-shed/roi-gridview-go/internal/registry"
	"github.com/anime-shed/roi-gridview-go/internal/scheduler"
	"github.com/anime-shed/roi-gridview-go/internal/service"
	"github.com/anime-shed/roi-gridview-go/internal/sorting"
	"github.com/anime-shed/roi-gridview-go/internal/storage"
	"github.com/anime-shed/roi-gridview-go/internal/transport"
	"github.com/anime-shed/roi-gridview-go/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	store       cache.Store
	metrics     *observer.MetricsObserver
	gridService service.GridService
	handler     http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)
	components := factory.NewComponentFactory(cfg, logger.Component("cache"))

	// Build dependency graph
	store, err := components.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	sources, err := components.SourceRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to create source repository: %w", err)
	}
	crop := storage.NewHTTPCropService(cfg.CropServiceURL, cfg.FetchTimeout, cfg.CropRPS, cfg.CropBurst)
	fetch := fetcher.New(store, crop, sources, logger.Component("fetcher"))

	reg := registry.New()
	events := observer.NewEventPublisher(logger.Component("events"))
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.Component("loads")))
	events.Subscribe(metrics)

	sched := scheduler.New(fetch, reg, events, scheduler.Options{
		Workers:      cfg.Workers(),
		FetchTimeout: cfg.FetchTimeout,
	}, logger.Component("scheduler"))

	extractor := components.Extractor()
	if err := extractor.Available(); err != nil {
		logger.WithError(err).Warn("Embedding sort disabled")
	} else {
		logger.WithField("device", extractor.Device()).Info("Embedding extractor ready")
	}
	calc := analyzer.NewMetricsCalculator(analyzer.DefaultOptions())
	sorter := sorting.New(reg, sched, calc, extractor, logger.Component("sorting"))

	gridService := service.NewGridService(reg, sched, sorter, store, events, validation.NewURLValidator(), logger.Component("grid"))
	handler := transport.NewHandler(gridService, metrics, store, cfg)

	logger.WithFields(logrus.Fields{
		"cache":          components.CacheType(),
		"cache_budget":   cfg.CacheBudgetBytes(),
		"workers":        sched.Workers(),
		"local_fallback": sources != nil,
		"azure":          cfg.AzureConfigured(),
	}).Info("Engine initialised")

	return &Container{
		config:      cfg,
		store:       store,
		metrics:     metrics,
		gridService: gridService,
		handler:     handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// GridService returns the engine facade
func (c *Container) GridService() service.GridService {
	return c.gridService
}

// Metrics returns the load counters
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Close stops the workers and the event dispatcher
func (c *Container) Close() {
	c.gridService.Close()
}
