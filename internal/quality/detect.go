package quality

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/JaimeStill/mrv/internal/records"
)

// Reference answers the catalog lookups the mapping rules need.
type Reference struct {
	Species      func(code string) bool
	Physiography func(code string) bool
}

// Detect runs the detection rules for types over recs. Every requested type
// has an entry in the result, empty when no record is affected.
func Detect(recs []records.Record, types []IssueType, rules Config, ref Reference) map[IssueType][]Finding {
	out := make(map[IssueType][]Finding, len(types))
	for _, t := range types {
		switch t {
		case MissingValue:
			out[t] = detectMissing(recs)
		case OutOfRange:
			out[t] = detectRange(recs, rules)
		case Duplicate:
			out[t] = detectDuplicates(recs)
		case SpeciesUnmapped:
			out[t] = detectUnmapped(recs, t, func(r records.Record) string { return r.SpeciesCode }, ref.Species, "species")
		case PhysiographyUnmapped:
			out[t] = detectUnmapped(recs, t, func(r records.Record) string { return r.Physiography }, ref.Physiography, "physiography")
		case HDOutlier:
			out[t] = detectOutliers(recs, rules)
		}
	}
	return out
}

func detectMissing(recs []records.Record) []Finding {
	var out []Finding
	for _, r := range recs {
		var missing []string
		if r.PlotID == "" {
			missing = append(missing, "plot_id")
		}
		if r.SpeciesCode == "" {
			missing = append(missing, "species_code")
		}
		if r.Diameter == nil {
			missing = append(missing, "diameter")
		}
		if r.Physiography == "" {
			missing = append(missing, "physiography")
		}
		if len(missing) > 0 {
			out = append(out, Finding{
				RecordID:  r.ID,
				IssueType: MissingValue,
				Reason:    "missing " + strings.Join(missing, ", "),
			})
		}
	}
	return out
}

func detectRange(recs []records.Record, rules Config) []Finding {
	var out []Finding
	for _, r := range recs {
		var reason string
		switch {
		case outside(r.Diameter, rules.DiameterMin, rules.DiameterMax):
			reason = fmt.Sprintf("diameter %g outside [%g, %g]", *r.Diameter, rules.DiameterMin, rules.DiameterMax)
		case outside(r.Height, rules.HeightMin, rules.HeightMax):
			reason = fmt.Sprintf("height %g outside [%g, %g]", *r.Height, rules.HeightMin, rules.HeightMax)
		case outside(r.SlopePercent, 0, rules.SlopeMax):
			reason = fmt.Sprintf("slope %g outside [0, %g]", *r.SlopePercent, rules.SlopeMax)
		default:
			continue
		}
		out = append(out, Finding{RecordID: r.ID, IssueType: OutOfRange, Reason: reason})
	}
	return out
}

// outside reports whether a measured value falls outside [lo, hi]. NaN and
// infinities are always outside.
func outside(v *float64, lo, hi float64) bool {
	if v == nil {
		return false
	}
	return !finite(*v) || *v < lo || *v > hi
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func detectDuplicates(recs []records.Record) []Finding {
	type key struct {
		plot string
		tree int
	}

	groups := make(map[key][]records.Record)
	for _, r := range recs {
		if r.PlotID == "" {
			continue
		}
		k := key{r.PlotID, r.TreeNumber}
		groups[k] = append(groups[k], r)
	}

	var out []Finding
	for _, r := range recs {
		if r.PlotID == "" {
			continue
		}
		g := groups[key{r.PlotID, r.TreeNumber}]
		if len(g) < 2 {
			continue
		}
		out = append(out, Finding{
			RecordID:  r.ID,
			IssueType: Duplicate,
			Reason:    fmt.Sprintf("plot %s tree %d appears %d times", r.PlotID, r.TreeNumber, len(g)),
		})
	}
	return out
}

func detectUnmapped(recs []records.Record, t IssueType, field func(records.Record) string, known func(string) bool, label string) []Finding {
	var out []Finding
	for _, r := range recs {
		code := field(r)
		if code == "" || known == nil || known(code) {
			continue
		}
		out = append(out, Finding{
			RecordID:  r.ID,
			IssueType: t,
			Reason:    fmt.Sprintf("%s %q is not mapped to the reference catalog", label, code),
		})
	}
	return out
}

// detectOutliers fits ln(h) = a + b ln(d) over records with measured
// diameter and height and flags residuals beyond OutlierK standard deviations.
func detectOutliers(recs []records.Record, rules Config) []Finding {
	var (
		xs, ys []float64
		idx    []int
	)
	for i, r := range recs {
		if r.Diameter == nil || r.Height == nil || !finite(*r.Diameter) || !finite(*r.Height) || *r.Diameter <= 0 || *r.Height <= 0 {
			continue
		}
		xs = append(xs, math.Log(*r.Diameter))
		ys = append(ys, math.Log(*r.Height))
		idx = append(idx, i)
	}
	if len(xs) < rules.OutlierMinSamples {
		return nil
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	residuals := make([]float64, len(xs))
	for i := range xs {
		residuals[i] = ys[i] - (alpha + beta*xs[i])
	}

	sd := stat.StdDev(residuals, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil
	}

	var out []Finding
	for i, res := range residuals {
		z := res / sd
		if math.Abs(z) <= rules.OutlierK {
			continue
		}
		r := recs[idx[i]]
		out = append(out, Finding{
			RecordID:  r.ID,
			IssueType: HDOutlier,
			Reason:    fmt.Sprintf("height %g m deviates %.1f sd from the height-diameter fit", *r.Height, z),
		})
	}
	return out
}
