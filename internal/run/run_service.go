package run

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"rollcall/internal/classify"
	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/ingest"
	"rollcall/internal/integrity"
	"rollcall/internal/linker"
	"rollcall/internal/messaging/kafka"
	"rollcall/internal/registry"
	"rollcall/internal/report"
	"rollcall/internal/shared/apperror"
	"rollcall/internal/shared/contextutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxRangeDays bounds a date-range request; each day is a full pipeline run.
const maxRangeDays = 31

var feedKeys = map[string]ingest.FeedType{
	FileKeyTelemetry: ingest.FeedTelemetry,
	FileKeyActivity:  ingest.FeedActivity,
	FileKeyPresence:  ingest.FeedPresence,
	FileKeySchedule:  ingest.FeedSchedule,
}

//go:generate mockgen -source=run_service.go -destination=mock/run_service_mock.go -package=mock
type Service interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error)
	GetReport(ctx context.Context, date string) (json.RawMessage, error)
	GetManifest(ctx context.Context, date string) (json.RawMessage, error)
}

type service struct {
	db         *sql.DB
	repo       report.Repository
	outbox     kafka.OutboxRepository
	ingestor   ingest.Service
	builder    registry.Builder
	cache      *registry.Cache
	links      linker.Service
	classifier classify.Service
	enforcer   integrity.Enforcer
	cfg        config.Engine
	logger     *zap.Logger
}

func NewService(
	db *sql.DB,
	repo report.Repository,
	outbox kafka.OutboxRepository,
	ingestor ingest.Service,
	builder registry.Builder,
	cache *registry.Cache,
	links linker.Service,
	classifier classify.Service,
	enforcer integrity.Enforcer,
	cfg config.Engine,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("run.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("run.service")
	}
	return &service{
		db:         db,
		repo:       repo,
		outbox:     outbox,
		ingestor:   ingestor,
		builder:    builder,
		cache:      cache,
		links:      links,
		classifier: classifier,
		enforcer:   enforcer,
		cfg:        cfg,
		logger:     l,
	}
}

// Reconcile runs the full pipeline for one date or an inclusive range. A
// fatal error on any day aborts the whole invocation; nothing is written for
// the failing day.
func (s *service) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	start, err := ingest.ParseDate(req.Date)
	if err != nil {
		return failed(err), apperror.Wrap(err, apperror.CodeInvalidInput, err.Error(), http.StatusBadRequest)
	}

	end := start
	if req.EndDate != "" {
		end, err = ingest.ParseDate(req.EndDate)
		if err != nil {
			return failed(err), apperror.Wrap(err, apperror.CodeInvalidInput, err.Error(), http.StatusBadRequest)
		}
	}
	if end.Before(start) {
		err := fmt.Errorf("end_date %s precedes date %s", req.EndDate, req.Date)
		return failed(err), apperror.Wrap(err, apperror.CodeInvalidInput, err.Error(), http.StatusBadRequest)
	}
	if int(end.Sub(start).Hours()/24) >= maxRangeDays {
		err := fmt.Errorf("date range exceeds %d days", maxRangeDays)
		return failed(err), apperror.Wrap(err, apperror.CodeInvalidInput, err.Error(), http.StatusBadRequest)
	}

	var result ReconcileResult
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		verdicts, excluded, err := s.runDay(ctx, day, req.Files)
		if err != nil {
			return failed(err), err
		}
		result.VerdictCount += verdicts
		result.ExcludedCount += excluded
	}

	result.Status = StatusSuccess
	return result, nil
}

// runDay is the single-date pipeline: registry, ingest, link, classify,
// integrity gates, assemble, then one atomic persistence transaction. No
// external state changes before that final transaction, so an abort at any
// stage boundary is side-effect free.
func (s *service) runDay(ctx context.Context, date time.Time, files map[string][]string) (int, int, error) {
	runID := uuid.New()
	log := contextutil.GetLogger(ctx, s.logger).With(
		zap.String("run_id", runID.String()),
		zap.String("date", date.Format("2006-01-02")),
	)

	// Stage 1: identity registry.
	snap, err := s.loadRegistry(ctx, files)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, 0, err
		}
		return 0, 0, apperror.Wrap(err, apperror.CodeRegistryError,
			"registry stage: "+err.Error(), http.StatusUnprocessableEntity)
	}
	reg := snap.Registry
	log.Info("registry ready", zap.Int("identities", reg.Size()))

	// Stage 2: ingest feeds.
	feedFiles := make(map[ingest.FeedType][]string)
	for key, paths := range files {
		if key == FileKeyRoster || key == FileKeyBilling {
			continue
		}
		feed, ok := feedKeys[key]
		if !ok {
			err := fmt.Errorf("unknown feed key %q", key)
			return 0, 0, apperror.Wrap(err, apperror.CodeInvalidInput, err.Error(), http.StatusBadRequest)
		}
		feedFiles[feed] = append(feedFiles[feed], paths...)
	}

	ingested, err := s.ingestor.IngestAll(ctx, feedFiles, date)
	if err != nil {
		return 0, 0, err
	}
	ingested.Files = append(ingested.Files, snap.Sources...)
	ingested.RowErrors = append(ingested.RowErrors, snap.RowErrors...)
	ingested.Warnings = append(ingested.Warnings, snap.Warnings...)

	// Integrity gate: mandatory coverage before any classification happens.
	if err := s.enforcer.CheckCoverage(ctx, ingested); err != nil {
		return 0, 0, apperror.Wrap(err, apperror.CodeValidationError,
			"integrity stage: "+err.Error(), http.StatusUnprocessableEntity)
	}

	// Stage 3: linkage.
	linkage, err := s.links.Link(ctx, ingested.Records, reg)
	if err != nil {
		return 0, 0, err
	}

	// Stage 4: classification.
	schedules := classify.BuildSchedule(linkage.Linked, date)
	verdicts, err := s.classifier.ClassifyAll(ctx, reg, linkage.Linked, schedules, date)
	if err != nil {
		return 0, 0, err
	}

	// Integrity gate: dual-source corroboration re-checked on the output.
	if err := s.enforcer.Corroborate(ctx, verdicts); err != nil {
		return 0, 0, apperror.Wrap(err, apperror.CodeValidationError,
			"integrity stage: "+err.Error(), http.StatusUnprocessableEntity)
	}

	manifest := s.enforcer.BuildManifest(runID, date, ingested, reg, linkage, verdicts)

	// Stage 5: assembly.
	bundle, err := report.Assemble(runID, date, verdicts, linkage.Quarantine, manifest)
	if err != nil {
		return 0, 0, apperror.Wrap(err, apperror.CodeConsistencyError,
			"assembly stage: "+err.Error(), http.StatusInternalServerError)
	}

	if err := s.persist(ctx, date, bundle, manifest); err != nil {
		return 0, 0, err
	}

	log.Info("run committed",
		zap.Int("verdicts", bundle.VerdictCount()),
		zap.Int("excluded", bundle.ExcludedCount()),
		zap.String("signature", manifest.Signature),
	)

	return bundle.VerdictCount(), bundle.ExcludedCount(), nil
}

// loadRegistry serves the registry snapshot through the freshness cache,
// keyed by the roster inputs so edited files bust the cache.
func (s *service) loadRegistry(ctx context.Context, files map[string][]string) (*registry.Snapshot, error) {
	rosterPaths := files[FileKeyRoster]
	if len(rosterPaths) == 0 {
		rosterPaths = s.cfg.RosterPaths
	}
	billingPaths := files[FileKeyBilling]
	if len(billingPaths) == 0 {
		billingPaths = s.cfg.BillingPaths
	}

	if len(rosterPaths) == 0 {
		return nil, fmt.Errorf("no roster sources configured: %w", registry.ErrEmptyRoster)
	}

	key := sourceFingerprint(append(append([]string{}, rosterPaths...), billingPaths...))

	build := func(ctx context.Context) (*registry.Snapshot, error) {
		return s.buildSnapshot(ctx, rosterPaths, billingPaths)
	}

	if s.cache != nil {
		return s.cache.GetOrBuild(ctx, key, build)
	}
	return build(ctx)
}

func (s *service) buildSnapshot(ctx context.Context, rosterPaths, billingPaths []string) (*registry.Snapshot, error) {
	snap := &registry.Snapshot{}
	var sources []registry.Source

	readAll := func(paths []string, feed ingest.FeedType, kind registry.SourceKind) {
		for _, path := range paths {
			rows, rowErrs, err := s.ingestor.ReadRosterFile(ctx, path, feed)
			if err != nil {
				snap.Warnings = append(snap.Warnings, err.Error())
				continue
			}
			sources = append(sources, registry.Source{Kind: kind, Rows: rows})
			snap.RowErrors = append(snap.RowErrors, rowErrs...)
			snap.Sources = append(snap.Sources, registry.RosterFileReport(path, feed, len(rows), len(rowErrs)))
		}
	}

	readAll(rosterPaths, ingest.FeedRoster, registry.SourceRoster)
	readAll(billingPaths, ingest.FeedBilling, registry.SourceBilling)

	reg, err := s.builder.Build(ctx, sources)
	if err != nil {
		return nil, err
	}
	snap.Registry = reg
	return snap, nil
}

// persist atomically replaces the date's artifacts and enqueues the export
// event, all in one transaction.
func (s *service) persist(ctx context.Context, date time.Time, bundle *report.Bundle, manifest integrity.RunManifest) error {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	manifestPayload, err := json.Marshal(manifest)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	if err := qtx.DeleteByDate(ctx, date); err != nil {
		return err
	}

	if err := qtx.CreateArtifact(ctx, &report.ReportArtifact{
		ID:            uuid.New(),
		RunID:         bundle.RunID,
		ReportDate:    date,
		Payload:       payload,
		VerdictCount:  bundle.VerdictCount(),
		ExcludedCount: bundle.ExcludedCount(),
		Signature:     manifest.Signature,
	}); err != nil {
		if report.IsDuplicateDate(err) {
			return apperror.Wrap(err, apperror.CodeConflict,
				"another run committed for this date", http.StatusConflict)
		}
		return err
	}

	if err := qtx.CreateManifest(ctx, &report.ManifestRecord{
		ID:         uuid.New(),
		RunID:      bundle.RunID,
		ReportDate: date,
		Payload:    manifestPayload,
		Signature:  manifest.Signature,
	}); err != nil {
		return err
	}

	if s.outbox != nil {
		eventPayload, err := json.Marshal(events.ReportGeneratedEvent{
			RunID:         bundle.RunID.String(),
			Date:          bundle.Date,
			VerdictCount:  bundle.VerdictCount(),
			ExcludedCount: bundle.ExcludedCount(),
			Signature:     manifest.Signature,
		})
		if err != nil {
			return err
		}
		if err := s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
			ID:            uuid.New().String(),
			RequestID:     contextutil.GetRequestID(ctx),
			AggregateType: "report",
			AggregateID:   bundle.RunID.String(),
			EventType:     "report.generated",
			Topic:         events.ReportGeneratedTopic,
			Payload:       eventPayload,
			Status:        kafka.OutboxStatusPending,
		}); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *service) GetReport(ctx context.Context, date string) (json.RawMessage, error) {
	d, err := ingest.ParseDate(date)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidInput, err.Error(), http.StatusBadRequest)
	}

	artifact, err := s.repo.FindArtifactByDate(ctx, d)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return artifact.Payload, nil
}

func (s *service) GetManifest(ctx context.Context, date string) (json.RawMessage, error) {
	d, err := ingest.ParseDate(date)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidInput, err.Error(), http.StatusBadRequest)
	}

	m, err := s.repo.FindManifestByDate(ctx, d)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return m.Payload, nil
}

func failed(err error) ReconcileResult {
	msg := err.Error()
	return ReconcileResult{Status: StatusFailed, Error: &msg}
}

// sourceFingerprint hashes roster paths and their modification times; any
// edit to a roster file produces a new cache key.
func sourceFingerprint(paths []string) string {
	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		if info, err := os.Stat(p); err == nil {
			h.Write([]byte(info.ModTime().UTC().Format(time.RFC3339Nano)))
		}
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
