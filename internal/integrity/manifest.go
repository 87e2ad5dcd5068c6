package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"rollcall/internal/ingest"

	"github.com/google/uuid"
)

// RunManifest is the audit artifact for one processing run: everything
// consumed, everything produced, and a short signature a human can
// cross-check.
type RunManifest struct {
	RunID            uuid.UUID           `json:"run_id"`
	Date             string              `json:"date"`
	GeneratedAt      time.Time           `json:"generated_at"`
	Sources          []ingest.FileReport `json:"sources"`
	RegistrySize     int                 `json:"registry_size"`
	LinkedCount      int                 `json:"linked_count"`
	QuarantinedCount int                 `json:"quarantined_count"`
	RowErrorCount    int                 `json:"row_error_count"`
	Warnings         []string            `json:"warnings,omitempty"`
	StatusCounts     map[string]int      `json:"status_counts"`
	Signature        string              `json:"signature"`
}

// Signature derives a short fixed-length integrity mark from the date and the
// consumed inputs. Deterministic for identical inputs.
func Signature(date string, sources []ingest.FileReport) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		parts = append(parts, fmt.Sprintf("%s|%s|%d", s.Path, s.Feed, s.RowCount))
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(date))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}
