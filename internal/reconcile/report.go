package reconcile

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/interpol/internal/shared/id"
)

// RankResult is the correction applied to one rank.
type RankResult struct {
	Rank    int     `json:"rank"`
	Path    string  `json:"path"`
	Anchors Anchors `json:"anchors"`
	Span    uint64  `json:"span"`
	Ratio   float64 `json:"ratio"`
	// SkewPPM is how far the rank's tick rate is from the reference, in
	// parts per million.
	SkewPPM float64 `json:"skew_ppm"`
	Events  int     `json:"events"`
}

// Summary describes the spread of drift ratios over a run.
type Summary struct {
	MeanRatio   float64 `json:"mean_ratio"`
	StdDevRatio float64 `json:"stddev_ratio"`
	MinRatio    float64 `json:"min_ratio"`
	MaxRatio    float64 `json:"max_ratio"`
	MaxSkewPPM  float64 `json:"max_skew_ppm"`
}

// Report is the outcome of one reconciliation batch.
type Report struct {
	RunID     id.RunID      `json:"run_id"`
	Reference int           `json:"reference_rank"`
	DryRun    bool          `json:"dry_run"`
	Ranks     []RankResult  `json:"ranks"`
	Summary   Summary       `json:"summary"`
	Elapsed   time.Duration `json:"elapsed"`
}

func newReport(runID id.RunID, ref int, dryRun bool, states []*rankState, elapsed time.Duration) *Report {
	r := &Report{
		RunID:     runID,
		Reference: ref,
		DryRun:    dryRun,
		Ranks:     make([]RankResult, len(states)),
		Elapsed:   elapsed,
	}
	ratios := make([]float64, len(states))
	for i, st := range states {
		ratio := st.drift.Ratio()
		ratios[i] = ratio
		r.Ranks[i] = RankResult{
			Rank:    st.rank,
			Path:    st.path,
			Anchors: st.anchors,
			Span:    st.span,
			Ratio:   ratio,
			SkewPPM: (ratio - 1) * 1e6,
			Events:  len(st.doc.Events),
		}
	}
	r.Summary = summarize(ratios)
	return r
}

func summarize(ratios []float64) Summary {
	if len(ratios) == 0 {
		return Summary{}
	}
	mean, std := stat.MeanStdDev(ratios, nil)
	if len(ratios) == 1 {
		std = 0
	}
	lo, hi := floats.Min(ratios), floats.Max(ratios)
	maxSkew := (hi - 1) * 1e6
	if s := (1 - lo) * 1e6; s > maxSkew {
		maxSkew = s
	}
	return Summary{
		MeanRatio:   mean,
		StdDevRatio: std,
		MinRatio:    lo,
		MaxRatio:    hi,
		MaxSkewPPM:  maxSkew,
	}
}

// WriteTable prints the report as an aligned table.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "rank\tinit_tsc\tfinalize_tsc\tspan\tratio\tskew_ppm\tevents\t\n")
	for _, rr := range r.Ranks {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.9f\t%+.3f\t%d\t\n",
			rr.Rank, rr.Anchors.Init, rr.Anchors.Finalize, rr.Span, rr.Ratio, rr.SkewPPM, rr.Events)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	mode := "applied"
	if r.DryRun {
		mode = "dry run"
	}
	_, err := fmt.Fprintf(w, "run %s (%s): reference rank %d, mean ratio %.9f, stddev %.3g, max skew %.3f ppm\n",
		r.RunID, mode, r.Reference, r.Summary.MeanRatio, r.Summary.StdDevRatio, r.Summary.MaxSkewPPM)
	return err
}
