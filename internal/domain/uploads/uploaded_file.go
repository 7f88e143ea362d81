package uploads

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusUploaded         = "uploaded"
	StatusUploadFailed     = "upload_failed"
	StatusProcessing       = "processing"
	StatusProcessingFailed = "processing_failed"
	StatusCompleted        = "completed"
)

type Location struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Location) TableName() string { return "locations" }

func (l *Location) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// UploadedFile is one row of the upload tracker: where the raw file lives and
// which columns the user confirmed for each role.
type UploadedFile struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string         `gorm:"column:user_id;not null;index" json:"user_id"`
	LocationID  uuid.UUID      `gorm:"type:uuid;column:location_id;not null;index" json:"location_id"`
	Filename    string         `gorm:"column:filename;not null" json:"filename"`
	StoragePath string         `gorm:"column:storage_path" json:"storage_path"`
	FileSize    int64          `gorm:"column:file_size;not null;default:0" json:"file_size"`
	FileType    string         `gorm:"column:file_type" json:"file_type"`
	Format      string         `gorm:"column:format" json:"format"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	DateCol     string         `gorm:"column:date_col" json:"date_col"`
	GroupCol    string         `gorm:"column:group_col" json:"menu_col"`
	TargetCol   string         `gorm:"column:target_col" json:"target_col"`
	TotalRows   int            `gorm:"column:total_rows;not null;default:0" json:"total_rows"`
	Columns     datatypes.JSON `gorm:"column:columns;type:jsonb" json:"columns,omitempty"`
	MLResult    datatypes.JSON `gorm:"column:ml_result;type:jsonb" json:"ml_result,omitempty"`
	UploadTime  time.Time      `gorm:"column:upload_time;not null;index" json:"upload_time"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (UploadedFile) TableName() string { return "file_upload_tracker" }

func (f *UploadedFile) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UploadTime.IsZero() {
		f.UploadTime = time.Now().UTC()
	}
	return nil
}
