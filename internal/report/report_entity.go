package report

import (
	"time"

	"github.com/google/uuid"
)

// ReportArtifact is the persisted report bundle for one date. One row per
// date; re-runs replace it atomically.
type ReportArtifact struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RunID         uuid.UUID `gorm:"column:run_id;type:uuid;not null"`
	ReportDate    time.Time `gorm:"column:report_date;type:date;not null;uniqueIndex:uq_report_artifacts_date"`
	Payload       []byte    `gorm:"column:payload;type:jsonb;not null"`
	VerdictCount  int       `gorm:"column:verdict_count;not null"`
	ExcludedCount int       `gorm:"column:excluded_count;not null"`
	Signature     string    `gorm:"column:signature;type:varchar(12);not null"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (ReportArtifact) TableName() string {
	return "report_artifacts"
}

// ManifestRecord is the persisted run manifest for one date.
type ManifestRecord struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RunID      uuid.UUID `gorm:"column:run_id;type:uuid;not null"`
	ReportDate time.Time `gorm:"column:report_date;type:date;not null;uniqueIndex:uq_run_manifests_date"`
	Payload    []byte    `gorm:"column:payload;type:jsonb;not null"`
	Signature  string    `gorm:"column:signature;type:varchar(12);not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (ManifestRecord) TableName() string {
	return "run_manifests"
}
