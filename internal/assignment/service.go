package assignment

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/compute"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/problem"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type service struct {
	store   store
	records records.System
	catalog *reference.Catalog
	logger  *slog.Logger
}

func newService(s store, recs records.System, catalog *reference.Catalog, logger *slog.Logger) System {
	return &service{
		store:   s,
		records: recs,
		catalog: catalog,
		logger:  logger.With("system", "assignment"),
	}
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *service) SpeciesMappings(ctx context.Context, projectID uuid.UUID) (map[string]string, error) {
	ms, err := s.store.mappings(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ms))
	for _, m := range ms {
		out[m.SourceCode] = m.SpeciesCode
	}
	return out, nil
}

func (s *service) Mappings(ctx context.Context, projectID uuid.UUID) ([]SpeciesMapping, error) {
	return s.store.mappings(ctx, projectID)
}

func (s *service) UpdateSpeciesMappings(ctx context.Context, projectID uuid.UUID, mappings []SpeciesMapping) (int, error) {
	var fields []problem.FieldError
	for i, m := range mappings {
		if err := validate.Struct(m); err != nil {
			for _, f := range problem.FromValidator(err).Fields {
				fields = append(fields, problem.FieldError{Field: fmt.Sprintf("mappings[%d].%s", i, f.Field), Message: f.Message})
			}
			continue
		}
		if m.SpeciesCode == "" {
			continue
		}
		if _, ok := s.catalog.FindSpecies(m.SpeciesCode); !ok {
			fields = append(fields, problem.FieldError{
				Field:   fmt.Sprintf("mappings[%d].species_code", i),
				Message: fmt.Sprintf("%q is not a reference species", m.SpeciesCode),
			})
		}
	}
	if len(fields) > 0 {
		return 0, problem.Invalid("invalid species mappings", fields...)
	}

	n, err := s.store.saveMappings(ctx, projectID, mappings)
	if err != nil {
		return 0, fmt.Errorf("save species mappings: %w", err)
	}

	s.logger.Info("species mappings updated", "project_id", projectID, "changed", n)
	return n, nil
}

func (s *service) PhysiographyOptions(ctx context.Context, projectID uuid.UUID) ([]PhysiographyOption, error) {
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, r := range recs {
		counts[r.Physiography]++
	}

	zones := s.catalog.Physiographies()
	out := make([]PhysiographyOption, len(zones))
	for i, z := range zones {
		out[i] = PhysiographyOption{
			Code:           z.Code,
			Name:           z.Name,
			DefaultHDModel: z.DefaultHDModel,
			Records:        counts[z.Code],
		}
	}
	return out, nil
}

func (s *service) PhysiographySummary(ctx context.Context, projectID uuid.UUID) ([]PhysiographySummary, error) {
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return nil, err
	}

	by := make(map[string]*PhysiographySummary)
	var out []*PhysiographySummary
	for _, z := range s.catalog.Physiographies() {
		ps := &PhysiographySummary{Physiography: z.Code, Name: z.Name, DefaultModel: z.DefaultHDModel, Models: map[string]int{}}
		by[z.Code] = ps
		out = append(out, ps)
	}

	for _, r := range recs {
		ps, ok := by[r.Physiography]
		if !ok {
			ps = &PhysiographySummary{Physiography: r.Physiography, Models: map[string]int{}}
			by[r.Physiography] = ps
			out = append(out, ps)
		}
		ps.Records++
		if r.HDModelID != nil {
			ps.Assigned++
			ps.Models[*r.HDModelID]++
		}
	}

	result := make([]PhysiographySummary, len(out))
	for i, ps := range out {
		result[i] = *ps
	}
	return result, nil
}

func (s *service) HDAssignments(ctx context.Context, projectID uuid.UUID) ([]HDAssignment, error) {
	return s.store.hdAssignments(ctx, projectID)
}

func (s *service) AssignHD(ctx context.Context, projectID uuid.UUID, overrides []HDAssignment) (Outcome, error) {
	if err := s.validateHD(overrides); err != nil {
		return Outcome{}, err
	}
	if len(overrides) > 0 {
		if err := s.store.saveHD(ctx, projectID, overrides); err != nil {
			return Outcome{}, fmt.Errorf("save hd assignments: %w", err)
		}
	}

	stored, err := s.store.hdAssignments(ctx, projectID)
	if err != nil {
		return Outcome{}, err
	}
	type key struct{ physiography, species string }
	explicit := make(map[key]string, len(stored))
	for _, a := range stored {
		explicit[key{a.Physiography, a.SpeciesCode}] = a.ModelID
	}

	resolve, err := s.resolver(ctx, projectID)
	if err != nil {
		return Outcome{}, err
	}
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	derived := make([]records.Derived, 0, len(recs))
	for _, r := range recs {
		species := resolve(r.SpeciesCode)
		model, ok := explicit[key{r.Physiography, species}]
		if !ok {
			model, ok = explicit[key{r.Physiography, AnySpecies}]
		}
		if !ok {
			if z, found := s.catalog.FindPhysiography(r.Physiography); found && z.DefaultHDModel != "" {
				model, ok = z.DefaultHDModel, true
			}
		}
		if !ok {
			out.Unassigned++
			continue
		}
		derived = append(derived, records.Derived{RecordID: r.ID, HDModelID: &model})
	}

	n, err := s.records.ApplyDerived(ctx, projectID, derived)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply hd models: %w", err)
	}
	out.Assigned = n

	s.logger.Info("hd models assigned", "project_id", projectID, "assigned", out.Assigned, "unassigned", out.Unassigned)
	return out, nil
}

func (s *service) validateHD(as []HDAssignment) error {
	var fields []problem.FieldError
	add := func(i int, field, msg string) {
		fields = append(fields, problem.FieldError{Field: fmt.Sprintf("assignments[%d].%s", i, field), Message: msg})
	}

	for i, a := range as {
		if err := validate.Struct(a); err != nil {
			for _, f := range problem.FromValidator(err).Fields {
				add(i, f.Field, f.Message)
			}
			continue
		}
		if _, ok := s.catalog.FindPhysiography(a.Physiography); !ok {
			add(i, "physiography", fmt.Sprintf("%q is not a reference physiography", a.Physiography))
		}
		if a.SpeciesCode != AnySpecies {
			if _, ok := s.catalog.FindSpecies(a.SpeciesCode); !ok {
				add(i, "species_code", fmt.Sprintf("%q is not a reference species", a.SpeciesCode))
			}
		}
		if _, ok := s.catalog.FindHDModel(a.ModelID); !ok {
			add(i, "model_id", fmt.Sprintf("%q is not a reference hd model", a.ModelID))
		}
	}

	if len(fields) > 0 {
		return problem.Invalid("invalid hd assignments", fields...)
	}
	return nil
}

func (s *service) UnassignedHD(ctx context.Context, projectID uuid.UUID) ([]records.Record, error) {
	return s.unassigned(ctx, projectID, func(r *records.Record) bool { return r.HDModelID == nil })
}

func (s *service) HDRelation(ctx context.Context, projectID uuid.UUID) (HDRelation, error) {
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return HDRelation{}, err
	}

	rel := HDRelation{Points: make([]Point, 0, len(recs))}
	var ds, hs []float64
	for _, r := range recs {
		if r.Diameter == nil {
			continue
		}
		rel.Points = append(rel.Points, Point{
			RecordID:        r.ID,
			Physiography:    r.Physiography,
			SpeciesCode:     r.SpeciesCode,
			Diameter:        *r.Diameter,
			Height:          r.Height,
			PredictedHeight: r.PredictedHeight,
		})
		if r.Height != nil {
			ds = append(ds, *r.Diameter)
			hs = append(hs, *r.Height)
		}
	}

	if fit, ok := compute.FitPower(ds, hs); ok {
		rel.Fit = &fit
	}
	return rel, nil
}

func (s *service) AllometricStatus(ctx context.Context, projectID uuid.UUID) ([]AllometricStatus, error) {
	stored, err := s.store.allometricAssignments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	explicit := make(map[string]string, len(stored))
	for _, a := range stored {
		explicit[a.SpeciesCode] = a.ModelID
	}

	resolve, err := s.resolver(ctx, projectID)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return nil, err
	}

	by := make(map[string]*AllometricStatus)
	for _, r := range recs {
		st, ok := by[r.SpeciesCode]
		if !ok {
			st = &AllometricStatus{SpeciesCode: r.SpeciesCode}
			if ref := resolve(r.SpeciesCode); s.known(ref) {
				st.ReferenceCode = ref
				if id, ok := explicit[ref]; ok {
					st.ModelID = &id
				}
				if m, ok := s.catalog.AllometricFor(ref); ok {
					st.DefaultModel = &m.ID
				}
			}
			by[r.SpeciesCode] = st
		}
		st.Records++
		if r.AllometricModelID != nil {
			st.Assigned++
		}
	}

	out := make([]AllometricStatus, 0, len(by))
	for _, code := range slices.Sorted(maps.Keys(by)) {
		out = append(out, *by[code])
	}
	return out, nil
}

func (s *service) AllometricAssignments(ctx context.Context, projectID uuid.UUID) ([]AllometricAssignment, error) {
	return s.store.allometricAssignments(ctx, projectID)
}

func (s *service) AssignAllometric(ctx context.Context, projectID uuid.UUID, assignments []AllometricAssignment) (Outcome, error) {
	if err := s.validateAllometric(assignments); err != nil {
		return Outcome{}, err
	}
	if len(assignments) > 0 {
		if err := s.store.saveAllometric(ctx, projectID, assignments); err != nil {
			return Outcome{}, fmt.Errorf("save allometric assignments: %w", err)
		}
	}

	stored, err := s.store.allometricAssignments(ctx, projectID)
	if err != nil {
		return Outcome{}, err
	}
	explicit := make(map[string]string, len(stored))
	for _, a := range stored {
		explicit[a.SpeciesCode] = a.ModelID
	}

	resolve, err := s.resolver(ctx, projectID)
	if err != nil {
		return Outcome{}, err
	}
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	derived := make([]records.Derived, 0, len(recs))
	for _, r := range recs {
		species := resolve(r.SpeciesCode)
		model, ok := explicit[species]
		if !ok {
			if m, found := s.catalog.AllometricFor(species); found && s.known(species) {
				model, ok = m.ID, true
			}
		}
		if !ok {
			out.Unassigned++
			continue
		}
		derived = append(derived, records.Derived{RecordID: r.ID, AllometricModelID: &model})
	}

	n, err := s.records.ApplyDerived(ctx, projectID, derived)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply allometric models: %w", err)
	}
	out.Assigned = n

	s.logger.Info("allometric models assigned", "project_id", projectID, "assigned", out.Assigned, "unassigned", out.Unassigned)
	return out, nil
}

func (s *service) validateAllometric(as []AllometricAssignment) error {
	var fields []problem.FieldError
	add := func(i int, field, msg string) {
		fields = append(fields, problem.FieldError{Field: fmt.Sprintf("assignments[%d].%s", i, field), Message: msg})
	}

	for i, a := range as {
		if err := validate.Struct(a); err != nil {
			for _, f := range problem.FromValidator(err).Fields {
				add(i, f.Field, f.Message)
			}
			continue
		}
		if !s.known(a.SpeciesCode) {
			add(i, "species_code", fmt.Sprintf("%q is not a reference species", a.SpeciesCode))
			continue
		}
		m, ok := s.catalog.FindAllometric(a.ModelID)
		switch {
		case !ok:
			add(i, "model_id", fmt.Sprintf("%q is not a reference allometric model", a.ModelID))
		case !m.AppliesTo(a.SpeciesCode):
			add(i, "model_id", fmt.Sprintf("model %s does not apply to species %s", a.ModelID, a.SpeciesCode))
		}
	}

	if len(fields) > 0 {
		return problem.Invalid("invalid allometric assignments", fields...)
	}
	return nil
}

func (s *service) UnassignedAllometric(ctx context.Context, projectID uuid.UUID) ([]records.Record, error) {
	return s.unassigned(ctx, projectID, func(r *records.Record) bool { return r.AllometricModelID == nil })
}

func (s *service) unassigned(ctx context.Context, projectID uuid.UUID, keep func(*records.Record) bool) ([]records.Record, error) {
	recs, err := s.records.All(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]records.Record, 0)
	for i := range recs {
		if keep(&recs[i]) {
			out = append(out, recs[i])
		}
	}
	slices.SortFunc(out, func(a, b records.Record) int { return cmp.Compare(a.RowNumber, b.RowNumber) })
	return out, nil
}

func (s *service) known(code string) bool {
	_, ok := s.catalog.FindSpecies(code)
	return ok
}

// resolver maps a project species code to its reference code. Codes with
// no catalog entry and no mapping are returned unchanged.
func (s *service) resolver(ctx context.Context, projectID uuid.UUID) (func(string) string, error) {
	mappings, err := s.SpeciesMappings(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load species mappings: %w", err)
	}
	return func(code string) string {
		if s.known(code) {
			return code
		}
		if target, ok := mappings[code]; ok {
			return target
		}
		return code
	}, nil
}
