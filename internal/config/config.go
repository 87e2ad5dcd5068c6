package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Engine holds every tunable rule of the reconciliation pipeline. The
// historical pipelines disagreed on thresholds and tie-breaks; those knobs
// live here so the classifier stays a single canonical algorithm.
type Engine struct {
	LateThreshold  time.Duration `validate:"gt=0"`
	EarlyThreshold time.Duration `validate:"gt=0"`

	// Synthetic schedule window applied when an identity-day has no real
	// schedule entry, if SyntheticSchedule is enabled.
	DefaultWindowStart string `validate:"required"`
	DefaultWindowEnd   string `validate:"required"`
	SyntheticSchedule  bool

	// AdjacentDayFallback accepts rows within one day of the target date when
	// a file contains no exact-date rows at all.
	AdjacentDayFallback bool

	// Roster sources in precedence order; earlier sources win populated
	// fields, later sources only fill blanks.
	RosterPaths []string

	// Billing exports that map equipment to operators; consulted after the
	// roster when resolving equipment associations.
	BillingPaths []string

	RegistryCacheTTL time.Duration `validate:"gte=0"`

	ExportDir string
}

func Default() Engine {
	return Engine{
		LateThreshold:       15 * time.Minute,
		EarlyThreshold:      30 * time.Minute,
		DefaultWindowStart:  "06:00",
		DefaultWindowEnd:    "17:00",
		SyntheticSchedule:   true,
		AdjacentDayFallback: true,
		RegistryCacheTTL:    15 * time.Minute,
		ExportDir:           "exports",
	}
}

// Load builds the engine config from environment variables on top of the
// defaults and validates the result.
func Load() (Engine, error) {
	cfg := Default()

	if v := os.Getenv("LATE_THRESHOLD_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LateThreshold = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("EARLY_THRESHOLD_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EarlyThreshold = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("DEFAULT_WINDOW_START"); v != "" {
		cfg.DefaultWindowStart = v
	}
	if v := os.Getenv("DEFAULT_WINDOW_END"); v != "" {
		cfg.DefaultWindowEnd = v
	}
	if v := os.Getenv("SYNTHETIC_SCHEDULE"); v != "" {
		cfg.SyntheticSchedule = parseBool(v, cfg.SyntheticSchedule)
	}
	if v := os.Getenv("ADJACENT_DAY_FALLBACK"); v != "" {
		cfg.AdjacentDayFallback = parseBool(v, cfg.AdjacentDayFallback)
	}
	if v := os.Getenv("ROSTER_PATHS"); v != "" {
		cfg.RosterPaths = splitPaths(v)
	}
	if v := os.Getenv("BILLING_PATHS"); v != "" {
		cfg.BillingPaths = splitPaths(v)
	}
	if v := os.Getenv("REGISTRY_CACHE_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RegistryCacheTTL = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}

func splitPaths(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
