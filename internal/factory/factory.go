package factory

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/roi-gridview-go/internal/cache"
	"github.com/anime-shed/roi-gridview-go/internal/config"
	"github.com/anime-shed/roi-gridview-go/internal/embedding"
	"github.com/anime-shed/roi-gridview-go/internal/repository"
	"github.com/anime-shed/roi-gridview-go/internal/storage"
)

// StorageType represents different types of source image backends
type StorageType string

const (
	// HTTPStorage for HTTP-based source fetching
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
	// LocalStorage for local file system
	LocalStorage StorageType = "local"
)

// CacheType represents the cache store backends
type CacheType string

const (
	MemoryCache CacheType = "memory"
	DiskCache   CacheType = "disk"
)

// cacheSubdir holds region entries below the configured cache directory
const cacheSubdir = "images"

// StorageFactory creates source fetchers
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.SourceFetcher, error)
}

// CacheFactory creates cache stores
type CacheFactory interface {
	CreateStore(cacheType CacheType) (cache.Store, error)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a source fetcher based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.SourceFetcher, error) {
	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPSourceFetcher(f.cfg.FetchTimeout), nil
	case AzureStorage:
		if !f.cfg.AzureConfigured() {
			return nil, repository.ErrAzureNotConfigured
		}
		src, err := storage.NewAzureSource(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey)
		if err != nil {
			return nil, err
		}
		return src, nil
	case LocalStorage:
		return storage.FileSource{}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// cacheFactory implements CacheFactory
type cacheFactory struct {
	cfg    *config.Config
	logger logrus.FieldLogger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger logrus.FieldLogger) CacheFactory {
	return &cacheFactory{cfg: cfg, logger: logger}
}

// CreateStore creates an instrumented cache store
func (f *cacheFactory) CreateStore(cacheType CacheType) (cache.Store, error) {
	budget := f.cfg.CacheBudgetBytes()
	switch cacheType {
	case MemoryCache:
		s, err := cache.NewMemoryStore(budget)
		if err != nil {
			return nil, err
		}
		return cache.Instrument(s), nil
	case DiskCache:
		if f.cfg.CacheDir == "" {
			return nil, fmt.Errorf("disk cache needs CACHE_DIR")
		}
		s, err := cache.OpenDiskStore(filepath.Join(f.cfg.CacheDir, cacheSubdir), budget, f.logger)
		if err != nil {
			return nil, err
		}
		return cache.Instrument(s), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory StorageFactory
	CacheFactory   CacheFactory
	cfg            *config.Config
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config, logger logrus.FieldLogger) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory: NewStorageFactory(cfg),
		CacheFactory:   NewCacheFactory(cfg, logger),
		cfg:            cfg,
	}
}

// CacheType picks the backend from configuration: a cache directory means disk
func (f *ComponentFactory) CacheType() CacheType {
	if f.cfg.CacheDir != "" {
		return DiskCache
	}
	return MemoryCache
}

// Store creates the configured cache store
func (f *ComponentFactory) Store() (cache.Store, error) {
	return f.CacheFactory.CreateStore(f.CacheType())
}

// SourceRepository creates the source images repository used for the local
// crop fallback, or nil when the fallback is disabled. The blob store is only
// wired when credentials are configured.
func (f *ComponentFactory) SourceRepository() (repository.SourceRepository, error) {
	if !f.cfg.LocalCropFallback {
		return nil, nil
	}
	httpSource, err := f.StorageFactory.CreateStorage(HTTPStorage)
	if err != nil {
		return nil, err
	}
	fileSource, err := f.StorageFactory.CreateStorage(LocalStorage)
	if err != nil {
		return nil, err
	}
	var azureSource storage.SourceFetcher
	if f.cfg.AzureConfigured() {
		if azureSource, err = f.StorageFactory.CreateStorage(AzureStorage); err != nil {
			return nil, fmt.Errorf("failed to create azure source: %w", err)
		}
	}
	return repository.NewMultiSourceRepository(httpSource, azureSource, fileSource), nil
}

// Extractor probes the embedding extractor once. A disabled extractor yields
// an unavailable handle, which makes embedding sorts fail instead of guessing.
func (f *ComponentFactory) Extractor() *embedding.Handle {
	if !f.cfg.EmbeddingEnabled {
		return embedding.Probe(nil)
	}
	return embedding.Probe(embedding.NewHistogramExtractor())
}
