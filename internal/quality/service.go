package quality

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/keylock"
	"github.com/JaimeStill/mrv/pkg/problem"
)

type service struct {
	store    store
	records  records.System
	catalog  *reference.Catalog
	resolver SpeciesResolver
	rules    Config
	locks    *keylock.Map
	logger   *slog.Logger
}

func newService(s store, recs records.System, catalog *reference.Catalog, resolver SpeciesResolver, rules Config, logger *slog.Logger) System {
	return &service{
		store:    s,
		records:  recs,
		catalog:  catalog,
		resolver: resolver,
		rules:    rules,
		locks:    keylock.New(),
		logger:   logger.With("system", "quality"),
	}
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *service) Scan(ctx context.Context, projectID uuid.UUID, types []IssueType) (map[IssueType]Issue, error) {
	if len(types) == 0 {
		types = AllTypes
	}
	for _, t := range types {
		if !t.Valid() {
			return nil, problem.Invalid("unknown issue type", problem.FieldError{
				Field:   "types",
				Message: fmt.Sprintf("%q is not a known issue type", t),
			})
		}
	}

	unlock, err := s.locks.Lock(ctx, projectID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.scan(ctx, projectID, types)
}

func (s *service) scan(ctx context.Context, projectID uuid.UUID, types []IssueType) (map[IssueType]Issue, error) {
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	ref, err := s.reference(ctx, projectID)
	if err != nil {
		return nil, err
	}

	found := Detect(recs, types, s.rules, ref)
	if err := s.store.replace(ctx, projectID, found, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("store findings: %w", err)
	}

	ignores, err := s.store.ignores(ctx, projectID, nil)
	if err != nil {
		return nil, fmt.Errorf("load ignores: %w", err)
	}

	if err := s.refresh(ctx, projectID, recs, ignores); err != nil {
		return nil, err
	}

	rows := make(map[uuid.UUID]int, len(recs))
	for _, r := range recs {
		rows[r.ID] = r.RowNumber
	}
	ignored := ignoreSet(ignores)

	issues := make(map[IssueType]Issue, len(found))
	for t, fs := range found {
		issue := Issue{Type: t, Records: make([]Affected, 0, len(fs))}
		for _, f := range fs {
			issue.Records = append(issue.Records, Affected{
				RecordID:  f.RecordID,
				RowNumber: rows[f.RecordID],
				Reason:    f.Reason,
				Ignored:   ignored[ignoreKey{f.RecordID, t}],
			})
		}
		slices.SortFunc(issue.Records, func(a, b Affected) int { return a.RowNumber - b.RowNumber })
		issues[t] = issue
	}

	s.logger.Info("quality scan complete", "project_id", projectID, "types", len(types), "records", len(recs))
	return issues, nil
}

func (s *service) Details(ctx context.Context, projectID uuid.UUID, issueType IssueType) ([]Detail, error) {
	if _, err := ParseType(string(issueType)); err != nil {
		return nil, err
	}

	active, err := s.activeSet(ctx, projectID)
	if err != nil {
		return nil, err
	}

	findings, err := s.store.findings(ctx, projectID, &issueType)
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}

	ignores, err := s.store.ignores(ctx, projectID, &issueType)
	if err != nil {
		return nil, fmt.Errorf("load ignores: %w", err)
	}
	ignored := ignoreSet(ignores)

	details := make([]Detail, 0, len(findings))
	for _, f := range findings {
		rec, ok := active[f.RecordID]
		if !ok {
			continue
		}
		details = append(details, Detail{
			Record:  rec,
			Reason:  f.Reason,
			Ignored: ignored[ignoreKey{f.RecordID, issueType}],
		})
	}

	slices.SortFunc(details, func(a, b Detail) int { return a.Record.RowNumber - b.Record.RowNumber })
	return details, nil
}

func (s *service) Ignore(ctx context.Context, projectID uuid.UUID, recordIDs []uuid.UUID, issueType IssueType) (int, error) {
	return s.decide(ctx, projectID, recordIDs, issueType, s.store.ignore, "records ignored")
}

func (s *service) Unignore(ctx context.Context, projectID uuid.UUID, recordIDs []uuid.UUID, issueType IssueType) (int, error) {
	return s.decide(ctx, projectID, recordIDs, issueType, s.store.unignore, "records unignored")
}

type decideFunc func(ctx context.Context, projectID uuid.UUID, issueType IssueType, ids []uuid.UUID) (int, error)

func (s *service) decide(ctx context.Context, projectID uuid.UUID, recordIDs []uuid.UUID, issueType IssueType, apply decideFunc, msg string) (int, error) {
	if _, err := ParseType(string(issueType)); err != nil {
		return 0, err
	}
	if len(recordIDs) == 0 {
		return 0, problem.Invalid("no records given", problem.FieldError{Field: "record_ids", Message: "is required"})
	}

	unlock, err := s.locks.Lock(ctx, projectID.String())
	if err != nil {
		return 0, err
	}
	defer unlock()

	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}

	known := make(map[uuid.UUID]bool, len(recs))
	for _, r := range recs {
		known[r.ID] = true
	}

	var unknown []string
	ids := make([]uuid.UUID, 0, len(recordIDs))
	for _, id := range recordIDs {
		if !known[id] {
			unknown = append(unknown, id.String())
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(unknown) > 0 {
		return 0, problem.NotFound(ErrUnknownRecords, "%s", strings.Join(unknown, ", "))
	}

	n, err := apply(ctx, projectID, issueType, ids)
	if err != nil {
		return 0, fmt.Errorf("store decisions: %w", err)
	}

	ignores, err := s.store.ignores(ctx, projectID, nil)
	if err != nil {
		return 0, fmt.Errorf("load ignores: %w", err)
	}
	if err := s.refresh(ctx, projectID, recs, ignores); err != nil {
		return 0, err
	}

	s.logger.Info(msg, "project_id", projectID, "issue_type", issueType, "changed", n)
	return n, nil
}

func (s *service) Ignored(ctx context.Context, projectID uuid.UUID, issueType IssueType) ([]records.Record, error) {
	if _, err := ParseType(string(issueType)); err != nil {
		return nil, err
	}

	active, err := s.activeSet(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ignores, err := s.store.ignores(ctx, projectID, &issueType)
	if err != nil {
		return nil, fmt.Errorf("load ignores: %w", err)
	}

	out := make([]records.Record, 0, len(ignores))
	for _, ig := range ignores {
		if rec, ok := active[ig.RecordID]; ok {
			out = append(out, rec)
		}
	}

	slices.SortFunc(out, func(a, b records.Record) int { return a.RowNumber - b.RowNumber })
	return out, nil
}

func (s *service) Summary(ctx context.Context, projectID uuid.UUID) ([]IssueSummary, error) {
	scans, err := s.store.scans(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}
	if len(scans) == 0 {
		return []IssueSummary{}, nil
	}

	active, err := s.activeSet(ctx, projectID)
	if err != nil {
		return nil, err
	}

	findings, err := s.store.findings(ctx, projectID, nil)
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}

	ignores, err := s.store.ignores(ctx, projectID, nil)
	if err != nil {
		return nil, fmt.Errorf("load ignores: %w", err)
	}
	ignored := ignoreSet(ignores)

	byType := make(map[IssueType]*IssueSummary, len(scans))
	out := make([]IssueSummary, 0, len(scans))
	for _, sc := range scans {
		out = append(out, IssueSummary{IssueType: sc.IssueType, ScannedAt: sc.ScannedAt})
	}
	for i := range out {
		byType[out[i].IssueType] = &out[i]
	}

	for _, f := range findings {
		sum, ok := byType[f.IssueType]
		if !ok {
			continue
		}
		if _, ok := active[f.RecordID]; !ok {
			continue
		}
		sum.Affected++
		if ignored[ignoreKey{f.RecordID, f.IssueType}] {
			sum.Ignored++
		}
	}

	slices.SortFunc(out, func(a, b IssueSummary) int {
		return slices.Index(AllTypes, a.IssueType) - slices.Index(AllTypes, b.IssueType)
	})
	return out, nil
}

func (s *service) UpdateRecord(ctx context.Context, projectID, recordID uuid.UUID, patch records.Patch) (*records.Record, error) {
	if _, err := s.records.Update(ctx, projectID, recordID, patch); err != nil {
		return nil, err
	}
	if err := s.rescan(ctx, projectID); err != nil {
		return nil, err
	}
	return s.records.Find(ctx, projectID, recordID)
}

func (s *service) BulkUpdate(ctx context.Context, projectID uuid.UUID, updates []records.Update) (int, error) {
	n, err := s.records.BulkUpdate(ctx, projectID, updates)
	if err != nil && problem.KindOf(err) != problem.KindPartialFailure {
		return n, err
	}
	if n > 0 {
		if rerr := s.rescan(ctx, projectID); rerr != nil {
			return n, rerr
		}
	}
	return n, err
}

// rescan re-detects the issue types scanned before for a project.
func (s *service) rescan(ctx context.Context, projectID uuid.UUID) error {
	scans, err := s.store.scans(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load scans: %w", err)
	}
	if len(scans) == 0 {
		return nil
	}

	types := make([]IssueType, len(scans))
	for i, sc := range scans {
		types[i] = sc.IssueType
	}

	unlock, err := s.locks.Lock(ctx, projectID.String())
	if err != nil {
		return err
	}
	defer unlock()

	_, err = s.scan(ctx, projectID, types)
	return err
}

// refresh recomputes the status of every active record: ignored when any
// ignore decision exists, flagged when any finding exists, active otherwise.
func (s *service) refresh(ctx context.Context, projectID uuid.UUID, recs []records.Record, ignores []Ignore) error {
	findings, err := s.store.findings(ctx, projectID, nil)
	if err != nil {
		return fmt.Errorf("load findings: %w", err)
	}

	flagged := make(map[uuid.UUID]bool, len(findings))
	for _, f := range findings {
		flagged[f.RecordID] = true
	}
	ignored := make(map[uuid.UUID]bool, len(ignores))
	for _, ig := range ignores {
		ignored[ig.RecordID] = true
	}

	changes := make(map[records.Status][]uuid.UUID)
	for _, r := range recs {
		want := records.StatusActive
		switch {
		case ignored[r.ID]:
			want = records.StatusIgnored
		case flagged[r.ID]:
			want = records.StatusFlagged
		}
		if r.Status != want {
			changes[want] = append(changes[want], r.ID)
		}
	}

	for status, ids := range changes {
		if _, err := s.records.SetStatus(ctx, projectID, ids, status); err != nil {
			return fmt.Errorf("set status %s: %w", status, err)
		}
	}
	return nil
}

func (s *service) reference(ctx context.Context, projectID uuid.UUID) (Reference, error) {
	mappings := map[string]string{}
	if s.resolver != nil {
		m, err := s.resolver.SpeciesMappings(ctx, projectID)
		if err != nil {
			return Reference{}, fmt.Errorf("load species mappings: %w", err)
		}
		mappings = m
	}

	return Reference{
		Species: func(code string) bool {
			if _, ok := s.catalog.FindSpecies(code); ok {
				return true
			}
			target, ok := mappings[code]
			if !ok {
				return false
			}
			_, ok = s.catalog.FindSpecies(target)
			return ok
		},
		Physiography: func(code string) bool {
			_, ok := s.catalog.FindPhysiography(code)
			return ok
		},
	}, nil
}

func (s *service) activeSet(ctx context.Context, projectID uuid.UUID) (map[uuid.UUID]records.Record, error) {
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make(map[uuid.UUID]records.Record, len(recs))
	for _, r := range recs {
		out[r.ID] = r
	}
	return out, nil
}

type ignoreKey struct {
	record uuid.UUID
	issue  IssueType
}

func ignoreSet(ignores []Ignore) map[ignoreKey]bool {
	out := make(map[ignoreKey]bool, len(ignores))
	for _, ig := range ignores {
		out[ignoreKey{ig.RecordID, ig.IssueType}] = true
	}
	return out
}
