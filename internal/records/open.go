package records

import (
	"context"
	"fmt"
	"time"

	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/resilience"
)

// Open returns the Store selected by RECORDS_BACKEND. SQL backends are
// migrated on open; an empty SQLite database is seeded with the demo session.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.RecordsBackend {
	case config.RecordsStatic, "":
		return NewDemoStore(), nil

	case config.RecordsSQLite, config.RecordsPostgres:
		driver := DriverSQLite
		if cfg.RecordsBackend == config.RecordsPostgres {
			driver = DriverPostgres
		}
		store, err := OpenSQL(ctx, driver, cfg.RecordsDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		if driver == DriverSQLite {
			if _, err := store.Session(ctx, DemoSession.ID); err != nil {
				if err := store.Seed(ctx, DemoSession, DemoHistory); err != nil {
					store.Close()
					return nil, err
				}
			}
		}
		return store, nil

	case config.RecordsSupabase:
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		})
	}
	return nil, fmt.Errorf("unsupported records backend %q", cfg.RecordsBackend)
}
