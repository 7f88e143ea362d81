package repos

import (
	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/data/repos/jobs"
	"github.com/eddykim0118/kivo/internal/data/repos/uploads"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

type LocationRepo = uploads.LocationRepo
type UploadedFileRepo = uploads.UploadedFileRepo

type ForecastJobRepo = jobs.ForecastJobRepo
type ForecastResultRepo = jobs.ForecastResultRepo

func NewLocationRepo(db *gorm.DB, baseLog *logger.Logger) LocationRepo {
	return uploads.NewLocationRepo(db, baseLog)
}
func NewUploadedFileRepo(db *gorm.DB, baseLog *logger.Logger) UploadedFileRepo {
	return uploads.NewUploadedFileRepo(db, baseLog)
}
func NewForecastJobRepo(db *gorm.DB, baseLog *logger.Logger) ForecastJobRepo {
	return jobs.NewForecastJobRepo(db, baseLog)
}
func NewForecastResultRepo(db *gorm.DB, baseLog *logger.Logger) ForecastResultRepo {
	return jobs.NewForecastResultRepo(db, baseLog)
}
