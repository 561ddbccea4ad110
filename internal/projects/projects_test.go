package projects_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/projects"
	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/problem"
)

func newSystem() projects.System {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return projects.NewMemory(logger, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
}

func strPtr(s string) *string { return &s }

func TestCreateAndFind(t *testing.T) {
	sys := newSystem()
	ctx := context.Background()

	p, err := sys.Create(ctx, projects.CreateCommand{Name: "Chitwan 2024", Description: "district inventory"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.CurrentStage != nil {
		t.Errorf("current stage = %v, want nil", *p.CurrentStage)
	}

	got, err := sys.Find(ctx, p.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != "Chitwan 2024" {
		t.Errorf("name = %q", got.Name)
	}

	if _, err := sys.Find(ctx, uuid.New()); problem.KindOf(err) != problem.KindNotFound {
		t.Errorf("unknown project kind = %s, want NotFound", problem.KindOf(err))
	}
}

func TestCreateValidation(t *testing.T) {
	_, err := newSystem().Create(context.Background(), projects.CreateCommand{})

	pe := problem.As(err)
	if pe.Kind != problem.KindValidation {
		t.Fatalf("kind = %s, want ValidationError", pe.Kind)
	}
	if len(pe.Fields) != 1 || pe.Fields[0].Field != "Name" {
		t.Errorf("fields = %+v", pe.Fields)
	}
}

func TestUpdate(t *testing.T) {
	sys := newSystem()
	ctx := context.Background()

	p, _ := sys.Create(ctx, projects.CreateCommand{Name: "a"})

	got, err := sys.Update(ctx, p.ID, projects.UpdateCommand{Description: strPtr("revised")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != "a" || got.Description != "revised" {
		t.Errorf("project = %+v", got)
	}

	if _, err := sys.Update(ctx, uuid.New(), projects.UpdateCommand{Name: strPtr("x")}); problem.KindOf(err) != problem.KindNotFound {
		t.Errorf("unknown project kind = %s", problem.KindOf(err))
	}
}

func TestStageTransitions(t *testing.T) {
	sys := newSystem()
	ctx := context.Background()

	p, _ := sys.Create(ctx, projects.CreateCommand{Name: "stages"})
	jobID := uuid.New()

	if err := sys.MarkRunning(ctx, p.ID, "height_prediction", &jobID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := sys.MarkSucceeded(ctx, p.ID, "height_prediction", "100 records"); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if err := sys.MarkFailed(ctx, p.ID, "height_prediction", "model unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	states, err := sys.Stages(ctx, p.ID)
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("states = %d, want 1", len(states))
	}

	st := states[0]
	if st.Status != projects.StageFailed {
		t.Errorf("status = %s, want failed", st.Status)
	}
	if !st.Succeeded() {
		t.Error("an earlier success should survive a later failure")
	}
	if st.JobID == nil || *st.JobID != jobID {
		t.Errorf("job id = %v, want %s", st.JobID, jobID)
	}

	got, _ := sys.Find(ctx, p.ID)
	if got.CurrentStage == nil || *got.CurrentStage != "height_prediction" {
		t.Errorf("current stage = %v", got.CurrentStage)
	}
}

func TestStagesUnknownProject(t *testing.T) {
	sys := newSystem()

	if _, err := sys.Stages(context.Background(), uuid.New()); problem.KindOf(err) != problem.KindNotFound {
		t.Errorf("kind = %s, want NotFound", problem.KindOf(err))
	}
	if err := sys.MarkRunning(context.Background(), uuid.New(), "import", nil); problem.KindOf(err) != problem.KindNotFound {
		t.Errorf("kind = %s, want NotFound", problem.KindOf(err))
	}
}

func TestListFilters(t *testing.T) {
	sys := newSystem()
	ctx := context.Background()

	a, _ := sys.Create(ctx, projects.CreateCommand{Name: "Terai east"})
	sys.Create(ctx, projects.CreateCommand{Name: "Hill west"})
	sys.MarkSucceeded(ctx, a.ID, "import", "")

	tests := []struct {
		name    string
		page    pagination.PageRequest
		filters projects.Filters
		want    int
	}{
		{"all", pagination.PageRequest{}, projects.Filters{}, 2},
		{"by name", pagination.PageRequest{}, projects.Filters{Name: strPtr("terai")}, 1},
		{"by stage", pagination.PageRequest{}, projects.Filters{CurrentStage: strPtr("import")}, 1},
		{"search", pagination.PageRequest{Search: strPtr("west")}, projects.Filters{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := sys.List(ctx, tt.page, tt.filters)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if res.Total != tt.want {
				t.Errorf("total = %d, want %d", res.Total, tt.want)
			}
		})
	}
}
