package ensemble

// ModelType identifies which opinion a feedback annotation scores.
type ModelType string

const (
	ModelA   ModelType = "model_a"
	ModelB   ModelType = "model_b"
	Combined ModelType = "ensemble"
)

// Valid reports whether m is a known model type.
func (m ModelType) Valid() bool {
	switch m {
	case ModelA, ModelB, Combined:
		return true
	}
	return false
}

// MinFeedbackSamples is the number of annotations a (category, model) pair
// needs before its observed accuracy affects the weights.
const MinFeedbackSamples = 5

// Weights are the per-model multipliers applied to confidences when the two
// models disagree.
type Weights struct {
	ModelA float64
	ModelB float64
}

// DefaultWeights are the fixed a-priori weights.
var DefaultWeights = Weights{ModelA: ModelAWeight, ModelB: ModelBWeight}

// Tally counts feedback outcomes.
type Tally struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Accuracy returns Correct/Total, or 0 for an empty tally.
func (t Tally) Accuracy() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Total)
}

type accuracyKey struct {
	category string
	model    ModelType
}

// AccuracyModel holds observed per-category accuracy for each model. It is
// built by the caller from feedback annotations and passed into
// DecideWithAccuracy explicitly. The zero value is not usable; call
// NewAccuracyModel.
type AccuracyModel struct {
	tallies map[accuracyKey]Tally
}

// NewAccuracyModel returns an empty model.
func NewAccuracyModel() *AccuracyModel {
	return &AccuracyModel{tallies: make(map[accuracyKey]Tally)}
}

// Record adds one feedback outcome. Only ModelA and ModelB annotations are
// tracked; others are ignored.
func (m *AccuracyModel) Record(category string, model ModelType, correct bool) {
	if category == "" || (model != ModelA && model != ModelB) {
		return
	}
	key := accuracyKey{category: category, model: model}
	t := m.tallies[key]
	t.Total++
	if correct {
		t.Correct++
	}
	m.tallies[key] = t
}

// Tally returns the counts recorded for a category and model.
func (m *AccuracyModel) Tally(category string, model ModelType) Tally {
	if m == nil {
		return Tally{}
	}
	return m.tallies[accuracyKey{category: category, model: model}]
}

// Weights scales the default weights by each model's observed accuracy on
// the category it predicted. Pairs with fewer than MinFeedbackSamples keep an
// accuracy of 1. The result is renormalised to the default total.
func (m *AccuracyModel) Weights(labelA, labelB string) Weights {
	if m == nil {
		return DefaultWeights
	}
	accA := m.observed(labelA, ModelA)
	accB := m.observed(labelB, ModelB)

	wA := ModelAWeight * accA
	wB := ModelBWeight * accB
	sum := wA + wB
	if sum == 0 {
		return DefaultWeights
	}
	scale := (ModelAWeight + ModelBWeight) / sum
	return Weights{ModelA: wA * scale, ModelB: wB * scale}
}

func (m *AccuracyModel) observed(category string, model ModelType) float64 {
	t := m.Tally(category, model)
	if t.Total < MinFeedbackSamples {
		return 1
	}
	return t.Accuracy()
}
