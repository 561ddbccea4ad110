// Package pipeline sequences the data-processing stages of a project over a
// fixed dependency graph.
package pipeline

import (
	"fmt"
	"slices"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageImport               Stage = "import"
	StagePreview              Stage = "preview"
	StageQualityCheck         Stage = "quality_check"
	StageCleaning             Stage = "cleaning"
	StageHDAssignment         Stage = "hd_assignment"
	StageHeightPrediction     Stage = "height_prediction"
	StageSlantedHeight        Stage = "slanted_height"
	StageVolumeRatio          Stage = "volume_ratio"
	StageAllometricAssignment Stage = "allometric_assignment"
	StageBiomass              Stage = "biomass"
	StageExport               Stage = "export"
)

// Node describes a stage's place in the graph.
type Node struct {
	Stage    Stage   `json:"stage"`
	Requires []Stage `json:"requires"`
	// Async stages run as jobs in the worker pool.
	Async bool `json:"async"`
	// MutatesRecords marks synchronous stages that rewrite the record set.
	// They are refused while an async job of the project is in flight.
	MutatesRecords bool `json:"mutates_records"`
}

// Graph is the stage dependency table in pipeline order.
var Graph = []Node{
	{Stage: StageImport},
	{Stage: StagePreview, Requires: []Stage{StageImport}, MutatesRecords: true},
	{Stage: StageQualityCheck, Requires: []Stage{StagePreview}},
	{Stage: StageCleaning, Requires: []Stage{StageQualityCheck}, MutatesRecords: true},
	{Stage: StageHDAssignment, Requires: []Stage{StageQualityCheck}, MutatesRecords: true},
	{Stage: StageHeightPrediction, Requires: []Stage{StageHDAssignment}, Async: true},
	{Stage: StageSlantedHeight, Requires: []Stage{StageHeightPrediction}, Async: true},
	{Stage: StageVolumeRatio, Requires: []Stage{StageSlantedHeight}, Async: true},
	{Stage: StageAllometricAssignment, Requires: []Stage{StageQualityCheck}, MutatesRecords: true},
	{Stage: StageBiomass, Requires: []Stage{StageVolumeRatio, StageAllometricAssignment}, Async: true},
	{Stage: StageExport, Requires: []Stage{StageBiomass}},
}

// Lookup returns the graph node of a stage.
func Lookup(s Stage) (Node, bool) {
	i := slices.IndexFunc(Graph, func(n Node) bool { return n.Stage == s })
	if i < 0 {
		return Node{}, false
	}
	return Graph[i], true
}

// ParseStage validates a raw stage name.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if _, ok := Lookup(s); !ok {
		return "", problem.Invalid("unknown stage", problem.FieldError{
			Field:   "stage",
			Message: fmt.Sprintf("%q is not a pipeline stage", raw),
		})
	}
	return s, nil
}

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(Graph))
	for i, n := range Graph {
		out[i] = n.Stage
	}
	return out
}

// Missing returns the predecessors of s not contained in done.
func Missing(s Stage, done func(Stage) bool) []Stage {
	n, ok := Lookup(s)
	if !ok {
		return nil
	}
	var out []Stage
	for _, req := range n.Requires {
		if !done(req) {
			out = append(out, req)
		}
	}
	return out
}
