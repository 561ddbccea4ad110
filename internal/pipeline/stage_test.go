package pipeline_test

import (
	"slices"
	"testing"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/pkg/problem"
)

func TestGraphOrder(t *testing.T) {
	seen := make(map[pipeline.Stage]bool)
	for _, n := range pipeline.Graph {
		for _, req := range n.Requires {
			if !seen[req] {
				t.Errorf("stage %s requires %s, which does not precede it", n.Stage, req)
			}
		}
		seen[n.Stage] = true
	}

	if got := len(pipeline.Stages()); got != 11 {
		t.Errorf("Stages() length = %d, want 11", got)
	}
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		raw     string
		want    pipeline.Stage
		wantErr bool
	}{
		{"import", pipeline.StageImport, false},
		{"volume_ratio", pipeline.StageVolumeRatio, false},
		{"Export", "", true},
		{"carbon", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := pipeline.ParseStage(tt.raw)
			if tt.wantErr {
				if problem.KindOf(err) != problem.KindValidation {
					t.Errorf("ParseStage(%q) err = %v, want validation error", tt.raw, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseStage(%q) = %q, %v", tt.raw, got, err)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	done := func(stages ...pipeline.Stage) func(pipeline.Stage) bool {
		return func(s pipeline.Stage) bool { return slices.Contains(stages, s) }
	}

	tests := []struct {
		name  string
		stage pipeline.Stage
		done  func(pipeline.Stage) bool
		want  []pipeline.Stage
	}{
		{"root stage", pipeline.StageImport, done(), nil},
		{"single predecessor", pipeline.StageQualityCheck, done(pipeline.StageImport), []pipeline.Stage{pipeline.StagePreview}},
		{
			"both biomass predecessors",
			pipeline.StageBiomass,
			done(pipeline.StageQualityCheck),
			[]pipeline.Stage{pipeline.StageVolumeRatio, pipeline.StageAllometricAssignment},
		},
		{"satisfied", pipeline.StageExport, done(pipeline.StageBiomass), nil},
		{"unknown stage", pipeline.Stage("carbon"), done(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pipeline.Missing(tt.stage, tt.done); !slices.Equal(got, tt.want) {
				t.Errorf("Missing(%s) = %v, want %v", tt.stage, got, tt.want)
			}
		})
	}
}
