// Package wire provides dependency injection for propenrich.
// It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	cliadapter "github.com/example/propenrich/internal/adapters/cli"
	"github.com/example/propenrich/internal/adapters/lookup"
	"github.com/example/propenrich/internal/adapters/postgres"
	"github.com/example/propenrich/internal/adapters/sqlite"
	"github.com/example/propenrich/internal/app"
	"github.com/example/propenrich/internal/config"
	"github.com/example/propenrich/internal/db"
	"github.com/example/propenrich/internal/listings"
	"github.com/example/propenrich/internal/logging"
	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/ports/secondary"
)

// connectTimeout bounds opening the Postgres pool.
const connectTimeout = 10 * time.Second

// ErrSeedUnsupported is returned when sample data is requested for a store
// that is not the local SQLite file.
var ErrSeedUnsupported = errors.New("sample listings can only be seeded into sqlite")

var (
	cfg = config.Default()

	stateRepo   secondary.EnrichmentStateRepository
	ownerRepo   secondary.OwnerRepository
	listingRepo secondary.ListingRepository
	tables      []secondary.ListingTable

	ingestService      primary.IngestService
	workerService      primary.WorkerService
	reconcileService   primary.ReconcileService
	diagnosticsService primary.DiagnosticsService

	pgStore *postgres.Store
	initErr error
	once    sync.Once
)

// Configure sets the configuration used by the first Init. Later calls have
// no effect once services exist.
func Configure(c *config.Config) {
	if c != nil {
		cfg = c
	}
}

// Config returns the active configuration.
func Config() *config.Config {
	return cfg
}

// Init opens the store and builds every service. It is safe to call more
// than once; the first error is returned each time.
func Init() error {
	once.Do(initServices)
	return initErr
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	var err error
	tables, err = listings.Load(cfg.Listings.RegistryPath)
	if err != nil {
		initErr = fmt.Errorf("failed to load listing registry: %w", err)
		return
	}

	// Create repository adapters (secondary ports) for the configured driver
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		pgStore, err = postgres.New(ctx, cfg.Database.PostgresDSN, cfg.Database.MaxConns)
		if err != nil {
			initErr = fmt.Errorf("failed to connect to postgres: %w", err)
			return
		}
		stateRepo = postgres.NewEnrichmentStateRepository(pgStore)
		ownerRepo = postgres.NewOwnerRepository(pgStore)
		listingRepo = postgres.NewListingRepository(pgStore)
	default:
		db.SetPath(cfg.Database.SQLitePath)
		database, err := db.GetDB()
		if err != nil {
			initErr = fmt.Errorf("failed to initialize database: %w", err)
			return
		}
		stateRepo = sqlite.NewEnrichmentStateRepository(database)
		ownerRepo = sqlite.NewOwnerRepository(database)
		listingRepo = sqlite.NewListingRepository(database)
	}

	// The lookup client only exists when the worker may call out
	var ownerLookup secondary.OwnerLookup
	if ready, reason := cfg.LookupReady(); ready {
		ownerLookup = lookup.NewClient(lookup.Config{
			BaseURL:         cfg.Lookup.BaseURL,
			APIKey:          cfg.Lookup.APIKey,
			Timeout:         cfg.Lookup.Timeout,
			RatePerSecond:   cfg.Lookup.RatePerSecond,
			Burst:           cfg.Lookup.Burst,
			BreakerFailures: cfg.Lookup.BreakerFailures,
			BreakerCooldown: cfg.Lookup.BreakerCooldown,
		})
	} else {
		logging.Debug().Str("reason", reason).Msg("owner lookup not configured")
	}

	// Create services (primary ports implementation)
	ingestService = app.NewIngestService(stateRepo, ownerRepo)
	workerService = app.NewWorkerService(ownerLookup, stateRepo, ownerRepo, app.WorkerSettings{
		Enabled:   cfg.Lookup.Enabled,
		HasAPIKey: cfg.Lookup.APIKey != "",
		DailyCap:  cfg.Lookup.DailyCap,
	})
	reconcileService = app.NewReconcileService(stateRepo, ownerRepo, listingRepo, tables, app.ReconcileSettings{
		PageSize:   cfg.Reconcile.PageSize,
		StuckAfter: cfg.Reconcile.StuckAfter,
		Workers:    cfg.Reconcile.Workers,
	})
	diagnosticsService = app.NewDiagnosticsService(stateRepo, ownerRepo, listingRepo, tables, app.DiagnosticsSettings{
		DailyCap:   cfg.Lookup.DailyCap,
		StuckAfter: cfg.Reconcile.StuckAfter,
		PageSize:   cfg.Reconcile.PageSize,
		Workers:    cfg.Reconcile.Workers,
	})

	logging.Debug().
		Str("driver", cfg.Database.Driver).
		Int("listing_tables", len(tables)).
		Bool("lookup", ownerLookup != nil).
		Msg("services initialized")
}

// Close releases the store.
func Close() error {
	if pgStore != nil {
		pgStore.Close()
		return nil
	}
	return db.Close()
}

// Ping checks the store connection.
func Ping(ctx context.Context) error {
	if err := Init(); err != nil {
		return err
	}
	if pgStore != nil {
		return pgStore.Ping(ctx)
	}
	database, err := db.GetDB()
	if err != nil {
		return err
	}
	return database.PingContext(ctx)
}

// MigrateSchema creates the enrichment state and owner tables. SQLite is
// migrated when it is opened, so only Postgres does work here.
func MigrateSchema(ctx context.Context) error {
	if err := Init(); err != nil {
		return err
	}
	if pgStore != nil {
		return pgStore.Migrate(ctx)
	}
	return nil
}

// SeedSampleListings inserts the bundled sample listings into the SQLite store.
func SeedSampleListings() (int, error) {
	if err := Init(); err != nil {
		return 0, err
	}
	if pgStore != nil {
		return 0, ErrSeedUnsupported
	}
	database, err := db.GetDB()
	if err != nil {
		return 0, err
	}
	return db.SeedSampleListings(database)
}

// ListingTables returns the configured listing table registry.
func ListingTables() []secondary.ListingTable {
	once.Do(initServices)
	return tables
}

// ListingRepository returns the singleton listing repository.
func ListingRepository() secondary.ListingRepository {
	once.Do(initServices)
	return listingRepo
}

// IngestService returns the singleton IngestService instance.
func IngestService() primary.IngestService {
	once.Do(initServices)
	return ingestService
}

// WorkerService returns the singleton WorkerService instance.
func WorkerService() primary.WorkerService {
	once.Do(initServices)
	return workerService
}

// ReconcileService returns the singleton ReconcileService instance.
func ReconcileService() primary.ReconcileService {
	once.Do(initServices)
	return reconcileService
}

// DiagnosticsService returns the singleton DiagnosticsService instance.
func DiagnosticsService() primary.DiagnosticsService {
	once.Do(initServices)
	return diagnosticsService
}

// EnrichmentAdapter returns a new EnrichmentAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func EnrichmentAdapter() *cliadapter.EnrichmentAdapter {
	return EnrichmentAdapterWithOutput(os.Stdout)
}

// EnrichmentAdapterWithOutput returns a new EnrichmentAdapter writing to the given output.
func EnrichmentAdapterWithOutput(out io.Writer) *cliadapter.EnrichmentAdapter {
	once.Do(initServices)
	return cliadapter.NewEnrichmentAdapter(ingestService, workerService, out)
}

// ReconcileAdapter returns a new ReconcileAdapter writing to stdout.
func ReconcileAdapter() *cliadapter.ReconcileAdapter {
	return ReconcileAdapterWithOutput(os.Stdout)
}

// ReconcileAdapterWithOutput returns a new ReconcileAdapter writing to the given output.
func ReconcileAdapterWithOutput(out io.Writer) *cliadapter.ReconcileAdapter {
	once.Do(initServices)
	return cliadapter.NewReconcileAdapter(reconcileService, out)
}

// DiagnosticsAdapter returns a new DiagnosticsAdapter writing to stdout.
func DiagnosticsAdapter() *cliadapter.DiagnosticsAdapter {
	return DiagnosticsAdapterWithOutput(os.Stdout)
}

// DiagnosticsAdapterWithOutput returns a new DiagnosticsAdapter writing to the given output.
func DiagnosticsAdapterWithOutput(out io.Writer) *cliadapter.DiagnosticsAdapter {
	once.Do(initServices)
	return cliadapter.NewDiagnosticsAdapter(diagnosticsService, out)
}
