package app

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/data/repos"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

type Repos struct {
	Location       repos.LocationRepo
	UploadedFile   repos.UploadedFileRepo
	ForecastJob    repos.ForecastJobRepo
	ForecastResult repos.ForecastResultRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Location:       repos.NewLocationRepo(db, log),
		UploadedFile:   repos.NewUploadedFileRepo(db, log),
		ForecastJob:    repos.NewForecastJobRepo(db, log),
		ForecastResult: repos.NewForecastResultRepo(db, log),
	}
}

// seedLocations creates every configured location that is not stored yet.
func seedLocations(ctx context.Context, locations repos.LocationRepo, names []string, log *logger.Logger) error {
	created := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dbc := dbctx.Of(ctx)
		existing, err := locations.GetByName(dbc, name)
		if err != nil {
			return fmt.Errorf("load location %q: %w", name, err)
		}
		if existing != nil {
			continue
		}
		if _, err := locations.Ensure(dbc, name); err != nil {
			return fmt.Errorf("seed location %q: %w", name, err)
		}
		created++
	}
	if created > 0 {
		log.Info("Seeded locations", "created", created)
	}
	return nil
}
