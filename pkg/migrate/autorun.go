package migrate

import (
	"context"
	"fmt"

	"github.com/wafulah/dukapesa-backend/pkg/config"
	"github.com/wafulah/dukapesa-backend/pkg/db"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app runs in dev mode
// and the feature flag is enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "running goose migrations (dev auto-run)")

	if err := Up(ctx, sqlDB); err != nil {
		return err
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
