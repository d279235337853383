// Package stats recomputes population level agreement and accuracy figures
// from stored scan records.
package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/example/wastesort/internal/ensemble"
)

// TopK is the number of labels kept per classifier breakdown.
const TopK = 5

// Record is the subset of a stored scan the statistics need. Nil
// classifications and empty labels count as absent.
type Record struct {
	Human      *ensemble.Classification
	ModelA     *ensemble.Classification
	ModelB     *ensemble.Classification
	FinalLabel string
}

// LabelCount is one entry of a label breakdown.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TrendPoint marks whether the human label matched the stored final label
// for the scan at Index (1-based, input order).
type TrendPoint struct {
	Index   int `json:"index"`
	Correct int `json:"correct"`
}

// Report aggregates a set of scan records. Percentages are in [0,100].
type Report struct {
	Total  int  `json:"total"`
	NoData bool `json:"no_data"`

	HumanModelAMatches   int `json:"human_model_a_matches"`
	HumanModelBMatches   int `json:"human_model_b_matches"`
	ModelAModelBMatches  int `json:"model_a_model_b_matches"`
	AllAgreeMatches      int `json:"all_agree_matches"`
	HumanEnsembleMatches int `json:"human_ensemble_matches"`
	ModelACorrect        int `json:"model_a_correct"`
	ModelBCorrect        int `json:"model_b_correct"`

	HumanAccuracy       float64 `json:"human_accuracy"`
	ModelAAccuracy      float64 `json:"model_a_accuracy"`
	ModelBAccuracy      float64 `json:"model_b_accuracy"`
	ModelAgreementRate  float64 `json:"model_agreement_rate"`
	AllAgreeRate        float64 `json:"all_agree_rate"`
	ModelAAvgConfidence float64 `json:"model_a_avg_confidence"`
	ModelBAvgConfidence float64 `json:"model_b_avg_confidence"`

	TopHuman  []LabelCount `json:"top_human"`
	TopModelA []LabelCount `json:"top_model_a"`
	TopModelB []LabelCount `json:"top_model_b"`

	AccuracyTrend      []TrendPoint `json:"accuracy_trend"`
	CumulativeAccuracy []float64    `json:"cumulative_accuracy"`
}

// Summarize walks the records once and derives the report. An empty input
// yields a zero report with NoData set.
func Summarize(records []Record) Report {
	n := len(records)
	if n == 0 {
		return Report{
			NoData:             true,
			TopHuman:           []LabelCount{},
			TopModelA:          []LabelCount{},
			TopModelB:          []LabelCount{},
			AccuracyTrend:      []TrendPoint{},
			CumulativeAccuracy: []float64{},
		}
	}

	var (
		report  = Report{Total: n}
		humans  = newCounter()
		modelsA = newCounter()
		modelsB = newCounter()
		confA   = make([]float64, n)
		confB   = make([]float64, n)
		trend   = make([]TrendPoint, n)
	)

	for i, r := range records {
		h, a, b := label(r.Human), label(r.ModelA), label(r.ModelB)
		final := r.FinalLabel

		humans.add(h)
		modelsA.add(a)
		modelsB.add(b)

		if match(h, a) {
			report.HumanModelAMatches++
		}
		if match(h, b) {
			report.HumanModelBMatches++
		}
		if match(a, b) {
			report.ModelAModelBMatches++
		}
		if match(h, a) && match(a, b) {
			report.AllAgreeMatches++
		}
		if match(a, final) {
			report.ModelACorrect++
		}
		if match(b, final) {
			report.ModelBCorrect++
		}

		point := TrendPoint{Index: i + 1}
		if match(h, final) {
			report.HumanEnsembleMatches++
			point.Correct = 1
		}
		trend[i] = point

		confA[i] = confidence(r.ModelA)
		confB[i] = confidence(r.ModelB)
	}

	report.HumanAccuracy = percent(report.HumanEnsembleMatches, n)
	report.ModelAAccuracy = percent(report.ModelACorrect, n)
	report.ModelBAccuracy = percent(report.ModelBCorrect, n)
	report.ModelAgreementRate = percent(report.ModelAModelBMatches, n)
	report.AllAgreeRate = percent(report.AllAgreeMatches, n)
	report.ModelAAvgConfidence = stat.Mean(confA, nil) * 100
	report.ModelBAvgConfidence = stat.Mean(confB, nil) * 100

	report.TopHuman = humans.top(TopK)
	report.TopModelA = modelsA.top(TopK)
	report.TopModelB = modelsB.top(TopK)

	report.AccuracyTrend = trend
	report.CumulativeAccuracy = Cumulative(trend)

	return report
}

// Cumulative returns the running human accuracy percentage after each trend
// point.
func Cumulative(trend []TrendPoint) []float64 {
	out := make([]float64, len(trend))
	correct := 0
	for i, p := range trend {
		correct += p.Correct
		out[i] = percent(correct, i+1)
	}
	return out
}

// TopLabels sorts counts descending and keeps at most k entries. Entries
// with equal counts keep their relative input order.
func TopLabels(counts []LabelCount, k int) []LabelCount {
	sorted := make([]LabelCount, len(counts))
	copy(sorted, counts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	if k >= 0 && len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// counter tallies labels in first-seen order.
type counter struct {
	index  map[string]int
	counts []LabelCount
}

func newCounter() *counter {
	return &counter{index: make(map[string]int)}
}

func (c *counter) add(label string) {
	if label == "" {
		return
	}
	if i, ok := c.index[label]; ok {
		c.counts[i].Count++
		return
	}
	c.index[label] = len(c.counts)
	c.counts = append(c.counts, LabelCount{Label: label, Count: 1})
}

func (c *counter) top(k int) []LabelCount {
	return TopLabels(c.counts, k)
}

func label(c *ensemble.Classification) string {
	if c == nil {
		return ""
	}
	return c.Label
}

func confidence(c *ensemble.Classification) float64 {
	if c == nil {
		return 0
	}
	return ensemble.ClampConfidence(c.Confidence)
}

func match(x, y string) bool {
	return x != "" && x == y
}

func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
