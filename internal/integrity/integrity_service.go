package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/classify"
	"rollcall/internal/config"
	"rollcall/internal/ingest"
	"rollcall/internal/linker"
	"rollcall/internal/registry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrMandatoryCoverage means a feed type the coverage policy requires
	// produced zero usable files. The run aborts with no output written.
	ErrMandatoryCoverage = errors.New("mandatory source coverage not met")

	// ErrCorroboration means a verdict would be issued without dual-source
	// backing. Producing nothing beats producing a partially-verified report.
	ErrCorroboration = errors.New("dual-source corroboration not met")
)

//go:generate mockgen -source=integrity_service.go -destination=mock/integrity_service_mock.go -package=mock
type Enforcer interface {
	CheckCoverage(ctx context.Context, ingested *ingest.Result) error
	Corroborate(ctx context.Context, verdicts []classify.DayVerdict) error
	BuildManifest(
		runID uuid.UUID,
		date time.Time,
		ingested *ingest.Result,
		reg *registry.Registry,
		linkage *linker.Result,
		verdicts []classify.DayVerdict,
	) RunManifest
}

type enforcer struct {
	cfg    config.Engine
	logger *zap.Logger
	now    func() time.Time
}

func NewEnforcer(cfg config.Engine, logger ...*zap.Logger) Enforcer {
	l := zap.L().Named("integrity.enforcer")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("integrity.enforcer")
	}
	return &enforcer{cfg: cfg, logger: l, now: time.Now}
}

// CheckCoverage enforces the minimum feed presence: at least one usable
// telemetry or activity file, and a schedule file unless the synthetic
// default is explicitly accepted. The roster requirement is enforced earlier
// by the registry builder, which refuses to produce an empty truth set.
func (e *enforcer) CheckCoverage(ctx context.Context, ingested *ingest.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	telemetry := ingested.FeedFileCount(ingest.FeedTelemetry)
	activity := ingested.FeedFileCount(ingest.FeedActivity)
	if telemetry+activity == 0 {
		return fmt.Errorf("%w: no usable telemetry or activity files", ErrMandatoryCoverage)
	}

	if ingested.FeedFileCount(ingest.FeedSchedule) == 0 && !e.cfg.SyntheticSchedule {
		return fmt.Errorf("%w: no schedule source and synthetic default disabled", ErrMandatoryCoverage)
	}

	return nil
}

// Corroborate re-checks every non-excluded verdict against the dual-source
// rule: observed activity on one side, a schedule entry (real or synthetic)
// on the other. The classifier should already guarantee this; the gate
// verifies rather than trusts.
func (e *enforcer) Corroborate(ctx context.Context, verdicts []classify.DayVerdict) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, v := range verdicts {
		if v.Excluded() || v.Status == classify.StatusUnverified {
			continue
		}
		if v.ActualStart == nil {
			return fmt.Errorf("%w: %s has status %s without observed activity",
				ErrCorroboration, v.Identity.NameKey, v.Status)
		}
		if v.Scheduled == nil {
			return fmt.Errorf("%w: %s has status %s without a schedule entry",
				ErrCorroboration, v.Identity.NameKey, v.Status)
		}
		for _, lr := range v.Records {
			if !lr.Verified {
				return fmt.Errorf("%w: %s carries an unverified contributing record",
					ErrCorroboration, v.Identity.NameKey)
			}
		}
	}

	return nil
}

func (e *enforcer) BuildManifest(
	runID uuid.UUID,
	date time.Time,
	ingested *ingest.Result,
	reg *registry.Registry,
	linkage *linker.Result,
	verdicts []classify.DayVerdict,
) RunManifest {
	dateStr := date.Format("2006-01-02")

	counts := make(map[string]int, len(classify.AllStatuses))
	for _, v := range verdicts {
		counts[string(v.Status)]++
	}

	warnings := append([]string{}, ingested.Warnings...)
	warnings = append(warnings, linkage.Ambiguities...)

	m := RunManifest{
		RunID:            runID,
		Date:             dateStr,
		GeneratedAt:      e.now().UTC(),
		Sources:          ingested.Files,
		RegistrySize:     reg.Size(),
		LinkedCount:      len(linkage.Linked),
		QuarantinedCount: len(linkage.Quarantine),
		RowErrorCount:    len(ingested.RowErrors),
		Warnings:         warnings,
		StatusCounts:     counts,
		Signature:        Signature(dateStr, ingested.Files),
	}

	e.logger.Info("run manifest built",
		zap.String("date", dateStr),
		zap.String("signature", m.Signature),
		zap.Int("linked", m.LinkedCount),
		zap.Int("quarantined", m.QuarantinedCount),
	)

	return m
}
