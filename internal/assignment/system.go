package assignment

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
)

// System defines the public contract of the assignment module.
type System interface {
	Handler() *Handler

	// SpeciesMappings returns a project's source code to reference code map.
	SpeciesMappings(ctx context.Context, projectID uuid.UUID) (map[string]string, error)
	Mappings(ctx context.Context, projectID uuid.UUID) ([]SpeciesMapping, error)
	// UpdateSpeciesMappings upserts mappings. An empty SpeciesCode removes
	// the mapping of its SourceCode.
	UpdateSpeciesMappings(ctx context.Context, projectID uuid.UUID, mappings []SpeciesMapping) (int, error)

	PhysiographyOptions(ctx context.Context, projectID uuid.UUID) ([]PhysiographyOption, error)
	PhysiographySummary(ctx context.Context, projectID uuid.UUID) ([]PhysiographySummary, error)
	HDAssignments(ctx context.Context, projectID uuid.UUID) ([]HDAssignment, error)
	// AssignHD stores the given overrides, then assigns an HD model to every
	// active record: an exact (physiography, species) override, else a
	// physiography-wide override, else the zone's default model.
	AssignHD(ctx context.Context, projectID uuid.UUID, overrides []HDAssignment) (Outcome, error)
	UnassignedHD(ctx context.Context, projectID uuid.UUID) ([]records.Record, error)
	HDRelation(ctx context.Context, projectID uuid.UUID) (HDRelation, error)

	AllometricStatus(ctx context.Context, projectID uuid.UUID) ([]AllometricStatus, error)
	AllometricAssignments(ctx context.Context, projectID uuid.UUID) ([]AllometricAssignment, error)
	// AssignAllometric stores the given assignments, then assigns an
	// allometric model to every active record: the stored assignment of its
	// species, else the catalog default for the species.
	AssignAllometric(ctx context.Context, projectID uuid.UUID, assignments []AllometricAssignment) (Outcome, error)
	UnassignedAllometric(ctx context.Context, projectID uuid.UUID) ([]records.Record, error)
}

type store interface {
	mappings(ctx context.Context, projectID uuid.UUID) ([]SpeciesMapping, error)
	saveMappings(ctx context.Context, projectID uuid.UUID, mappings []SpeciesMapping) (int, error)
	hdAssignments(ctx context.Context, projectID uuid.UUID) ([]HDAssignment, error)
	saveHD(ctx context.Context, projectID uuid.UUID, assignments []HDAssignment) error
	allometricAssignments(ctx context.Context, projectID uuid.UUID) ([]AllometricAssignment, error)
	saveAllometric(ctx context.Context, projectID uuid.UUID, assignments []AllometricAssignment) error
}
