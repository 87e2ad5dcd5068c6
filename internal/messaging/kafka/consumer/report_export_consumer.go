package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rollcall/internal/events"
	"rollcall/internal/ingest"
	"rollcall/internal/report"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ConsumeReportGenerated delivers committed report bundles to the export
// directory as JSON documents. This is the external export collaborator seam;
// rendering beyond JSON is someone else's job.
func ConsumeReportGenerated(
	ctx context.Context,
	reader *kafkago.Reader,
	repo report.Repository,
	exportDir string,
	logger *zap.Logger,
) {
	log := logger.Named("kafka.consumer.report_export")
	log.Info("report export consumer started", zap.String("export_dir", exportDir))

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("report export consumer stopped")
				return
			}
			log.Error("fetch report.generated message failed", zap.Error(err))
			continue
		}

		var event events.ReportGeneratedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error("decode report.generated event failed", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		if err := exportBundle(ctx, repo, exportDir, event); err != nil {
			log.Error("export report bundle failed",
				zap.String("date", event.Date),
				zap.String("run_id", event.RunID),
				zap.Error(err),
			)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit report.generated message failed", zap.Error(err))
			continue
		}

		log.Info("report bundle exported",
			zap.String("date", event.Date),
			zap.String("signature", event.Signature),
		)
	}
}

func exportBundle(ctx context.Context, repo report.Repository, exportDir string, event events.ReportGeneratedEvent) error {
	date, err := ingest.ParseDate(event.Date)
	if err != nil {
		return err
	}

	artifact, err := repo.FindArtifactByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("load artifact for %s: %w", event.Date, err)
	}

	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return err
	}

	// Re-exporting the same run is a no-op so redelivered messages stay
	// idempotent; a newer run for the date overwrites.
	path := filepath.Join(exportDir, fmt.Sprintf("attendance-%s.json", event.Date))
	if existing, err := os.ReadFile(path); err == nil {
		var prior struct {
			RunID string `json:"run_id"`
		}
		if json.Unmarshal(existing, &prior) == nil && prior.RunID == artifact.RunID.String() {
			return nil
		}
	}

	return os.WriteFile(path, artifact.Payload, 0o644)
}
