package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnusableFile marks a feed file that cannot contribute rows; the caller
// records a warning and moves on, it is never fatal on its own.
var ErrUnusableFile = fmt.Errorf("unusable feed file")

const maxConcurrentFiles = 4

//go:generate mockgen -source=ingest_service.go -destination=mock/ingest_service_mock.go -package=mock
type Service interface {
	IngestFile(ctx context.Context, path string, feed FeedType, date time.Time) (FileResult, error)
	IngestAll(ctx context.Context, files map[FeedType][]string, date time.Time) (*Result, error)
	ReadRosterFile(ctx context.Context, path string, feed FeedType) ([]RosterRow, []RowError, error)
}

// FileResult is the outcome of ingesting a single feed file.
type FileResult struct {
	Records   []RawActivityRecord
	RowErrors []RowError
	Report    FileReport
}

type service struct {
	adjacentFallback bool
	logger           *zap.Logger
}

func NewService(adjacentFallback bool, logger ...*zap.Logger) Service {
	l := zap.L().Named("ingest.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("ingest.service")
	}
	return &service{adjacentFallback: adjacentFallback, logger: l}
}

func (s *service) IngestFile(ctx context.Context, path string, feed FeedType, date time.Time) (FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileResult{}, fmt.Errorf("%w: %s: %v", ErrUnusableFile, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileResult{}, fmt.Errorf("%w: %s: %v", ErrUnusableFile, path, err)
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return FileResult{}, fmt.Errorf("%w: %s: cannot read header: %v", ErrUnusableFile, path, err)
	}

	roles, err := ResolveColumns(header, feed)
	if err != nil {
		return FileResult{}, fmt.Errorf("%w: %s: %v", ErrUnusableFile, path, err)
	}

	var (
		candidates []RawActivityRecord
		rowErrors  []RowError
		rowCount   int
	)

	for rowIdx := 1; ; rowIdx++ {
		if err := ctx.Err(); err != nil {
			return FileResult{}, err
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, RowError{SourcePath: path, RowIndex: rowIdx, Reason: err.Error()})
			continue
		}
		rowCount++

		rec, rerr := s.parseRow(row, roles, feed, path, rowIdx, date)
		if rerr != nil {
			rowErrors = append(rowErrors, *rerr)
			continue
		}
		candidates = append(candidates, rec)
	}

	accepted, adjacentUsed := s.filterByDate(candidates, date)

	report := FileReport{
		Path:            path,
		Feed:            feed,
		RowCount:        rowCount,
		Accepted:        len(accepted),
		Skipped:         rowCount - len(accepted),
		ModTime:         info.ModTime().UTC(),
		AdjacentDayUsed: adjacentUsed,
	}

	return FileResult{Records: accepted, RowErrors: rowErrors, Report: report}, nil
}

func (s *service) parseRow(
	row []string,
	roles RoleMap,
	feed FeedType,
	path string,
	rowIdx int,
	date time.Time,
) (RawActivityRecord, *RowError) {
	identity := roles.Value(row, RoleIdentity)
	equipment := roles.Value(row, RoleEquipment)

	if identity == "" && equipment == "" {
		return RawActivityRecord{}, &RowError{
			SourcePath: path, RowIndex: rowIdx,
			Reason: "missing identity and equipment hints",
		}
	}

	startRaw := roles.Value(row, RoleStartTime)
	start, err := ParseTimestamp(startRaw, date)
	if err != nil {
		return RawActivityRecord{}, &RowError{
			SourcePath: path, RowIndex: rowIdx,
			Reason: fmt.Sprintf("bad start time: %v", err),
		}
	}

	var end *time.Time
	if endRaw := roles.Value(row, RoleEndTime); endRaw != "" {
		t, err := ParseTimestamp(endRaw, date)
		if err != nil {
			return RawActivityRecord{}, &RowError{
				SourcePath: path, RowIndex: rowIdx,
				Reason: fmt.Sprintf("bad end time: %v", err),
			}
		}
		end = &t
	}

	return RawActivityRecord{
		IdentityHint:  identity,
		EquipmentHint: equipment,
		Start:         start,
		End:           end,
		Site:          roles.Value(row, RoleSite),
		ActivityType:  roles.Value(row, RoleActivityType),
		Feed:          feed,
		SourcePath:    path,
		RowIndex:      rowIdx,
	}, nil
}

// filterByDate keeps exact-date rows. When a file has no exact match at all
// the adjacent-day fallback widens to one day either side and flags every
// surviving record.
func (s *service) filterByDate(candidates []RawActivityRecord, date time.Time) ([]RawActivityRecord, bool) {
	var exact []RawActivityRecord
	for _, rec := range candidates {
		if SameDay(rec.Start, date) {
			exact = append(exact, rec)
		}
	}
	if len(exact) > 0 || !s.adjacentFallback {
		return exact, false
	}

	var adjacent []RawActivityRecord
	for _, rec := range candidates {
		if withinOneDay(rec.Start, date) {
			rec.AdjacentDay = true
			adjacent = append(adjacent, rec)
		}
	}
	return adjacent, len(adjacent) > 0
}

func (s *service) IngestAll(ctx context.Context, files map[FeedType][]string, date time.Time) (*Result, error) {
	type job struct {
		path string
		feed FeedType
	}

	var jobs []job
	for feed, paths := range files {
		for _, p := range paths {
			jobs = append(jobs, job{path: p, feed: feed})
		}
	}
	// Deterministic ingest order regardless of map iteration.
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].feed != jobs[j].feed {
			return jobs[i].feed < jobs[j].feed
		}
		return jobs[i].path < jobs[j].path
	})

	var (
		mu  sync.Mutex
		out Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFiles)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res, err := s.IngestFile(gctx, j.path, j.feed, date)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("feed file skipped",
					zap.String("path", j.path),
					zap.String("feed", string(j.feed)),
					zap.Error(err),
				)
				out.Warnings = append(out.Warnings, err.Error())
				return nil
			}

			out.Records = append(out.Records, res.Records...)
			out.RowErrors = append(out.RowErrors, res.RowErrors...)
			out.Files = append(out.Files, res.Report)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stable ordering for idempotent downstream output.
	sort.Slice(out.Records, func(i, j int) bool {
		if out.Records[i].SourcePath != out.Records[j].SourcePath {
			return out.Records[i].SourcePath < out.Records[j].SourcePath
		}
		return out.Records[i].RowIndex < out.Records[j].RowIndex
	})
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })
	sort.Slice(out.RowErrors, func(i, j int) bool {
		if out.RowErrors[i].SourcePath != out.RowErrors[j].SourcePath {
			return out.RowErrors[i].SourcePath < out.RowErrors[j].SourcePath
		}
		return out.RowErrors[i].RowIndex < out.RowErrors[j].RowIndex
	})

	return &out, nil
}

func (s *service) ReadRosterFile(ctx context.Context, path string, feed FeedType) ([]RosterRow, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrUnusableFile, path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: cannot read header: %v", ErrUnusableFile, path, err)
	}

	roles, err := ResolveColumns(header, feed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrUnusableFile, path, err)
	}

	var (
		rows      []RosterRow
		rowErrors []RowError
	)

	for rowIdx := 1; ; rowIdx++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, RowError{SourcePath: path, RowIndex: rowIdx, Reason: err.Error()})
			continue
		}

		name := roles.Value(row, RoleIdentity)
		if name == "" {
			rowErrors = append(rowErrors, RowError{SourcePath: path, RowIndex: rowIdx, Reason: "missing name"})
			continue
		}

		rows = append(rows, RosterRow{
			Name:       name,
			ExternalID: roles.Value(row, RoleExternalID),
			Equipment:  roles.Value(row, RoleEquipment),
			SourcePath: path,
			RowIndex:   rowIdx,
		})
	}

	return rows, rowErrors, nil
}
