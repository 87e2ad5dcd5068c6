package report

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

//go:generate mockgen -source=report_repo.go -destination=mock/report_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	DeleteByDate(ctx context.Context, date time.Time) error
	CreateArtifact(ctx context.Context, a *ReportArtifact) error
	CreateManifest(ctx context.Context, m *ManifestRecord) error
	FindArtifactByDate(ctx context.Context, date time.Time) (*ReportArtifact, error)
	FindManifestByDate(ctx context.Context, date time.Time) (*ManifestRecord, error)
}

type repository struct {
	db    *gorm.DB
	sqlDB *sql.DB
	tx    *sql.Tx
}

func NewRepository(db *gorm.DB, sqlDB *sql.DB) Repository {
	return &repository{db: db, sqlDB: sqlDB}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{db: r.db, sqlDB: r.sqlDB, tx: tx}
}

// DeleteByDate wipes every prior artifact for the date. Runs inside the same
// transaction as the inserts so partial and stale reports never coexist.
func (r *repository) DeleteByDate(ctx context.Context, date time.Time) error {
	d := date.Format("2006-01-02")
	exec := r.execer()
	if _, err := exec.ExecContext(ctx, `DELETE FROM report_artifacts WHERE report_date = $1`, d); err != nil {
		return err
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM run_manifests WHERE report_date = $1`, d); err != nil {
		return err
	}
	return nil
}

func (r *repository) CreateArtifact(ctx context.Context, a *ReportArtifact) error {
	query := `
        INSERT INTO report_artifacts (
            id, run_id, report_date, payload, verdict_count, excluded_count, signature, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
    `
	_, err := r.execer().ExecContext(
		ctx, query,
		a.ID, a.RunID, a.ReportDate.Format("2006-01-02"),
		a.Payload, a.VerdictCount, a.ExcludedCount, a.Signature,
	)
	return err
}

func (r *repository) CreateManifest(ctx context.Context, m *ManifestRecord) error {
	query := `
        INSERT INTO run_manifests (
            id, run_id, report_date, payload, signature, created_at
        ) VALUES ($1, $2, $3, $4, $5, NOW())
    `
	_, err := r.execer().ExecContext(
		ctx, query,
		m.ID, m.RunID, m.ReportDate.Format("2006-01-02"),
		m.Payload, m.Signature,
	)
	return err
}

func (r *repository) FindArtifactByDate(ctx context.Context, date time.Time) (*ReportArtifact, error) {
	var a ReportArtifact
	err := r.db.WithContext(ctx).
		Where("report_date = ?", date.Format("2006-01-02")).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) FindManifestByDate(ctx context.Context, date time.Time) (*ManifestRecord, error) {
	var m ManifestRecord
	err := r.db.WithContext(ctx).
		Where("report_date = ?", date.Format("2006-01-02")).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) execer() interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
} {
	if r.tx != nil {
		return r.tx
	}
	return r.sqlDB
}

// IsDuplicateDate reports whether an insert hit the unique-per-date index,
// which means another run committed for the same date concurrently.
func IsDuplicateDate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
