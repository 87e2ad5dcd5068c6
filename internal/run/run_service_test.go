package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"rollcall/internal/classify"
	"rollcall/internal/config"
	"rollcall/internal/ingest"
	"rollcall/internal/integrity"
	"rollcall/internal/linker"
	"rollcall/internal/messaging/kafka"
	"rollcall/internal/registry"
	"rollcall/internal/report"
	"rollcall/internal/shared/apperror"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type fakeRepo struct {
	deleted   []time.Time
	artifacts []*report.ReportArtifact
	manifests []*report.ManifestRecord

	findArtifactFn func(ctx context.Context, date time.Time) (*report.ReportArtifact, error)
	findManifestFn func(ctx context.Context, date time.Time) (*report.ManifestRecord, error)
}

func (f *fakeRepo) WithTx(tx *sql.Tx) report.Repository { return f }
func (f *fakeRepo) DeleteByDate(ctx context.Context, date time.Time) error {
	f.deleted = append(f.deleted, date)
	return nil
}
func (f *fakeRepo) CreateArtifact(ctx context.Context, a *report.ReportArtifact) error {
	f.artifacts = append(f.artifacts, a)
	return nil
}
func (f *fakeRepo) CreateManifest(ctx context.Context, m *report.ManifestRecord) error {
	f.manifests = append(f.manifests, m)
	return nil
}
func (f *fakeRepo) FindArtifactByDate(ctx context.Context, date time.Time) (*report.ReportArtifact, error) {
	return f.findArtifactFn(ctx, date)
}
func (f *fakeRepo) FindManifestByDate(ctx context.Context, date time.Time) (*report.ManifestRecord, error) {
	return f.findManifestFn(ctx, date)
}

type fakeOutbox struct {
	created []kafka.OutboxEvent
}

func (f *fakeOutbox) WithTx(tx *sql.Tx) kafka.OutboxRepository { return f }
func (f *fakeOutbox) Create(ctx context.Context, event kafka.OutboxEvent) error {
	f.created = append(f.created, event)
	return nil
}
func (f *fakeOutbox) ListPending(ctx context.Context, limit int) ([]kafka.OutboxEvent, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkSent(ctx context.Context, id string) error             { return nil }
func (f *fakeOutbox) MarkFailed(ctx context.Context, id string, r string) error { return nil }

type fakeIngestor struct {
	ingestAllFn  func(ctx context.Context, files map[ingest.FeedType][]string, date time.Time) (*ingest.Result, error)
	readRosterFn func(ctx context.Context, path string, feed ingest.FeedType) ([]ingest.RosterRow, []ingest.RowError, error)
}

func (f *fakeIngestor) IngestFile(ctx context.Context, path string, feed ingest.FeedType, date time.Time) (ingest.FileResult, error) {
	return ingest.FileResult{}, nil
}
func (f *fakeIngestor) IngestAll(ctx context.Context, files map[ingest.FeedType][]string, date time.Time) (*ingest.Result, error) {
	return f.ingestAllFn(ctx, files, date)
}
func (f *fakeIngestor) ReadRosterFile(ctx context.Context, path string, feed ingest.FeedType) ([]ingest.RosterRow, []ingest.RowError, error) {
	return f.readRosterFn(ctx, path, feed)
}

type serviceDeps struct {
	db      *sql.DB
	sqlMock sqlmock.Sqlmock
	repo    *fakeRepo
	outbox  *fakeOutbox
	ingest  *fakeIngestor
	service Service
}

func setupServiceTest(t *testing.T) *serviceDeps {
	t.Helper()
	db, sqlMock, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })

	repo := &fakeRepo{}
	outbox := &fakeOutbox{}
	ingestor := &fakeIngestor{
		readRosterFn: func(ctx context.Context, path string, feed ingest.FeedType) ([]ingest.RosterRow, []ingest.RowError, error) {
			return []ingest.RosterRow{{Name: "J. Rivera", SourcePath: path}}, nil, nil
		},
	}

	cfg := config.Default()
	svc := NewService(
		db, repo, outbox, ingestor,
		registry.NewBuilder(), nil,
		linker.NewService(), classify.NewService(cfg), integrity.NewEnforcer(cfg),
		cfg,
	)

	return &serviceDeps{db: db, sqlMock: sqlMock, repo: repo, outbox: outbox, ingest: ingestor, service: svc}
}

func telemetryResult(date time.Time) *ingest.Result {
	morning := time.Date(date.Year(), date.Month(), date.Day(), 6, 5, 0, 0, time.UTC)
	evening := time.Date(date.Year(), date.Month(), date.Day(), 16, 40, 0, 0, time.UTC)
	return &ingest.Result{
		Records: []ingest.RawActivityRecord{
			{IdentityHint: "J. Rivera", Start: morning, Feed: ingest.FeedTelemetry, SourcePath: "telemetry.csv", RowIndex: 1},
			{IdentityHint: "J. Rivera", Start: evening, Feed: ingest.FeedTelemetry, SourcePath: "telemetry.csv", RowIndex: 2},
		},
		Files: []ingest.FileReport{{Path: "telemetry.csv", Feed: ingest.FeedTelemetry, RowCount: 2, Accepted: 2}},
	}
}

func TestService_Reconcile_CommitsOneTransaction(t *testing.T) {
	deps := setupServiceTest(t)
	deps.ingest.ingestAllFn = func(ctx context.Context, files map[ingest.FeedType][]string, date time.Time) (*ingest.Result, error) {
		return telemetryResult(date), nil
	}

	deps.sqlMock.ExpectBegin()
	deps.sqlMock.ExpectCommit()

	result, err := deps.service.Reconcile(context.Background(), ReconcileRequest{
		Date: "2025-03-10",
		Files: map[string][]string{
			FileKeyRoster:    {"roster.csv"},
			FileKeyTelemetry: {"telemetry.csv"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.VerdictCount)
	assert.Equal(t, 0, result.ExcludedCount)

	assert.Len(t, deps.repo.deleted, 1)
	assert.Len(t, deps.repo.artifacts, 1)
	assert.Len(t, deps.repo.manifests, 1)
	assert.Equal(t, deps.repo.artifacts[0].Signature, deps.repo.manifests[0].Signature)

	// The export event rides the same transaction.
	assert.Len(t, deps.outbox.created, 1)
	assert.Equal(t, "report.generated", deps.outbox.created[0].EventType)
	assert.Equal(t, kafka.OutboxStatusPending, deps.outbox.created[0].Status)

	var bundle report.Bundle
	assert.NoError(t, json.Unmarshal(deps.repo.artifacts[0].Payload, &bundle))
	assert.Equal(t, 1, bundle.Summary[string(classify.StatusOnTime)])

	assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
}

func TestService_Reconcile_CoverageFailureWritesNothing(t *testing.T) {
	deps := setupServiceTest(t)
	deps.ingest.ingestAllFn = func(ctx context.Context, files map[ingest.FeedType][]string, date time.Time) (*ingest.Result, error) {
		// Presence only: the mandatory telemetry/activity coverage fails.
		return &ingest.Result{
			Files: []ingest.FileReport{{Path: "presence.csv", Feed: ingest.FeedPresence, RowCount: 3}},
		}, nil
	}

	result, err := deps.service.Reconcile(context.Background(), ReconcileRequest{
		Date: "2025-03-10",
		Files: map[string][]string{
			FileKeyRoster:   {"roster.csv"},
			FileKeyPresence: {"presence.csv"},
		},
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, integrity.ErrMandatoryCoverage)
	assert.Equal(t, StatusFailed, result.Status)
	assert.NotNil(t, result.Error)
	assert.Equal(t, 0, result.VerdictCount)

	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeValidationError, appErr.Code)

	// Zero writes of any kind.
	assert.Empty(t, deps.repo.deleted)
	assert.Empty(t, deps.repo.artifacts)
	assert.Empty(t, deps.outbox.created)
	assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
}

func TestService_Reconcile_NoScheduleSyntheticDisabled(t *testing.T) {
	db, sqlMock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{}
	outbox := &fakeOutbox{}
	ingestor := &fakeIngestor{
		readRosterFn: func(ctx context.Context, path string, feed ingest.FeedType) ([]ingest.RosterRow, []ingest.RowError, error) {
			// Five roster identities, telemetry will cover only some.
			return []ingest.RosterRow{
				{Name: "J. Rivera"}, {Name: "M. Okafor"}, {Name: "A. Chen"},
				{Name: "S. Patel"}, {Name: "L. Moreau"},
			}, nil, nil
		},
		ingestAllFn: func(ctx context.Context, files map[ingest.FeedType][]string, date time.Time) (*ingest.Result, error) {
			return telemetryResult(date), nil
		},
	}

	cfg := config.Default()
	cfg.SyntheticSchedule = false
	svc := NewService(
		db, repo, outbox, ingestor,
		registry.NewBuilder(), nil,
		linker.NewService(), classify.NewService(cfg), integrity.NewEnforcer(cfg),
		cfg,
	)

	result, err := svc.Reconcile(context.Background(), ReconcileRequest{
		Date: "2025-03-10",
		Files: map[string][]string{
			FileKeyRoster:    {"roster.csv"},
			FileKeyTelemetry: {"telemetry.csv"},
		},
	})
	assert.ErrorIs(t, err, integrity.ErrMandatoryCoverage)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, repo.deleted)
	assert.Empty(t, repo.artifacts)
	assert.Empty(t, outbox.created)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestService_Reconcile_EmptyRosterFailsRun(t *testing.T) {
	deps := setupServiceTest(t)
	deps.ingest.readRosterFn = func(ctx context.Context, path string, feed ingest.FeedType) ([]ingest.RosterRow, []ingest.RowError, error) {
		return nil, nil, nil
	}

	result, err := deps.service.Reconcile(context.Background(), ReconcileRequest{
		Date: "2025-03-10",
		Files: map[string][]string{
			FileKeyRoster:    {"roster.csv"},
			FileKeyTelemetry: {"telemetry.csv"},
		},
	})
	assert.ErrorIs(t, err, registry.ErrEmptyRoster)
	assert.Equal(t, StatusFailed, result.Status)

	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeRegistryError, appErr.Code)
}

func TestService_Reconcile_BadDates(t *testing.T) {
	deps := setupServiceTest(t)
	files := map[string][]string{FileKeyRoster: {"roster.csv"}}

	_, err := deps.service.Reconcile(context.Background(), ReconcileRequest{Date: "03/10/2025", Files: files})
	assert.Error(t, err)

	_, err = deps.service.Reconcile(context.Background(), ReconcileRequest{
		Date: "2025-03-10", EndDate: "2025-03-01", Files: files,
	})
	assert.Error(t, err)

	_, err = deps.service.Reconcile(context.Background(), ReconcileRequest{
		Date: "2025-03-01", EndDate: "2025-05-01", Files: files,
	})
	assert.Error(t, err)

	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidInput, appErr.Code)
}

func TestService_Reconcile_UnknownFeedKey(t *testing.T) {
	deps := setupServiceTest(t)

	result, err := deps.service.Reconcile(context.Background(), ReconcileRequest{
		Date: "2025-03-10",
		Files: map[string][]string{
			FileKeyRoster: {"roster.csv"},
			"sightings":   {"ufo.csv"},
		},
	})
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)

	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidInput, appErr.Code)
}

func TestService_Reconcile_RangeAccumulates(t *testing.T) {
	deps := setupServiceTest(t)
	deps.ingest.ingestAllFn = func(ctx context.Context, files map[ingest.FeedType][]string, date time.Time) (*ingest.Result, error) {
		return telemetryResult(date), nil
	}

	for i := 0; i < 3; i++ {
		deps.sqlMock.ExpectBegin()
		deps.sqlMock.ExpectCommit()
	}

	result, err := deps.service.Reconcile(context.Background(), ReconcileRequest{
		Date:    "2025-03-10",
		EndDate: "2025-03-12",
		Files: map[string][]string{
			FileKeyRoster:    {"roster.csv"},
			FileKeyTelemetry: {"telemetry.csv"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, result.VerdictCount)
	assert.Len(t, deps.repo.artifacts, 3)
	assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
}

func TestService_GetReport(t *testing.T) {
	deps := setupServiceTest(t)
	deps.repo.findArtifactFn = func(ctx context.Context, date time.Time) (*report.ReportArtifact, error) {
		return &report.ReportArtifact{Payload: []byte(`{"date":"2025-03-10"}`)}, nil
	}

	payload, err := deps.service.GetReport(context.Background(), "2025-03-10")
	assert.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-03-10"}`, string(payload))
}

func TestService_GetReport_NotFound(t *testing.T) {
	deps := setupServiceTest(t)
	deps.repo.findArtifactFn = func(ctx context.Context, date time.Time) (*report.ReportArtifact, error) {
		return nil, gorm.ErrRecordNotFound
	}

	_, err := deps.service.GetReport(context.Background(), "2025-03-10")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = deps.service.GetReport(context.Background(), "not-a-date")
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidInput, appErr.Code)
}

func TestService_GetManifest(t *testing.T) {
	deps := setupServiceTest(t)
	deps.repo.findManifestFn = func(ctx context.Context, date time.Time) (*report.ManifestRecord, error) {
		return nil, errors.New("connection reset")
	}

	_, err := deps.service.GetManifest(context.Background(), "2025-03-10")
	assert.EqualError(t, err, "connection reset")
}
