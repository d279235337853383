// Package ensemble reconciles the human label and two model predictions for a
// scan into one final recommendation.
package ensemble

import "math"

// ReasonCode explains which decision rule produced a result.
type ReasonCode string

const (
	ReasonAllAgree             ReasonCode = "ALL_AGREE"
	ReasonModelsAgreeOverride  ReasonCode = "MODELS_AGREE_OVERRIDE"
	ReasonModelsAgreeWithHuman ReasonCode = "MODELS_AGREE_WITH_HUMAN"
	ReasonModelBStrongSignal   ReasonCode = "REXNET_STRONG_SIGNAL"
	// ReasonHumanConsensusTie is shared by the model A strong signal branch and
	// the true tie branch. The MODEL_A_STRONG and TIE_DEFAULT_HUMAN flags tell
	// them apart.
	ReasonHumanConsensusTie     ReasonCode = "HUMAN_CONSENSUS_TIE"
	ReasonAmbiguousMissingInput ReasonCode = "AMBIGUOUS_MISSING_PREDICTIONS"
)

// Strength is a coarse confidence tier used for UI emphasis.
type Strength string

const (
	StrengthVeryHigh Strength = "VERY_HIGH"
	StrengthHigh     Strength = "HIGH"
	StrengthModerate Strength = "MODERATE"
	StrengthLow      Strength = "LOW"
)

// Diagnostic flags attached to a result, in the order they are raised.
const (
	FlagMissingPredictions = "MISSING_PREDICTIONS"
	FlagHumanDiffersFromAI = "HUMAN_DIFFERS_FROM_AI"
	FlagAIOverride         = "AI_OVERRIDE"
	FlagHumanPrefers       = "HUMAN_PREFERS"
	FlagModelsConflict     = "MODELS_CONFLICT"
	FlagModelBStrong       = "MODEL_B_STRONG"
	FlagModelAStrong       = "MODEL_A_STRONG"
	FlagTieDefaultHuman    = "TIE_DEFAULT_HUMAN"
)

// Tunables of the decision policy.
const (
	ModelAWeight            = 0.45
	ModelBWeight            = 0.55
	OverrideThreshold       = 0.88
	StrongSignalMargin      = 0.15
	HumanOverrideConfidence = 0.7
	ModelAMatchFloor        = 0.65
	ModelBMatchFloor        = 0.70
	TieConfidence           = 0.65
)

// Classification is one opinion about a scan. Confidence is ignored for the
// human input.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Metrics describes how the three opinions relate to each other.
type Metrics struct {
	AllAgree               bool     `json:"all_agree"`
	AIConsensus            bool     `json:"ai_consensus"`
	HumanAIAlignment       bool     `json:"human_ai_alignment"`
	RecommendationStrength Strength `json:"recommendation_strength"`
	Flags                  []string `json:"flags"`
}

// Result is the reconciled verdict for a scan. FinalLabel is empty when any
// input was missing.
type Result struct {
	FinalLabel      string     `json:"final_label"`
	FinalConfidence float64    `json:"final_confidence"`
	ReasonCode      ReasonCode `json:"reason_code"`
	Metrics         Metrics    `json:"metrics"`
}

// Missing reports whether the result is the ambiguous sentinel.
func (r Result) Missing() bool {
	return r.ReasonCode == ReasonAmbiguousMissingInput
}

// Decide applies the fixed decision policy to the three inputs. A nil input or
// an empty label yields the ambiguous result.
func Decide(human, modelA, modelB *Classification) Result {
	return decide(human, modelA, modelB, DefaultWeights)
}

// DecideWithAccuracy behaves like Decide but derives the conflict weights
// from observed per-category accuracy. A nil model uses the fixed weights.
func DecideWithAccuracy(human, modelA, modelB *Classification, accuracy *AccuracyModel) Result {
	weights := DefaultWeights
	if accuracy != nil && modelA != nil && modelB != nil {
		weights = accuracy.Weights(modelA.Label, modelB.Label)
	}
	return decide(human, modelA, modelB, weights)
}

func decide(human, modelA, modelB *Classification, weights Weights) Result {
	if missing(human) || missing(modelA) || missing(modelB) {
		return ambiguous()
	}

	h := human.Label
	a, confA := modelA.Label, ClampConfidence(modelA.Confidence)
	b, confB := modelB.Label, ClampConfidence(modelB.Confidence)

	var (
		label      string
		confidence float64
		reason     ReasonCode
		strength   Strength
		flags      = []string{}
	)

	switch {
	case h == a && a == b:
		label, confidence = h, mean(confA, confB)
		reason, strength = ReasonAllAgree, StrengthVeryHigh

	case a == b:
		avg := mean(confA, confB)
		flags = append(flags, FlagHumanDiffersFromAI)
		if avg > OverrideThreshold {
			label, confidence = a, avg
			reason, strength = ReasonModelsAgreeOverride, StrengthHigh
			flags = append(flags, FlagAIOverride)
		} else {
			label, confidence = h, HumanOverrideConfidence
			reason, strength = ReasonModelsAgreeWithHuman, StrengthModerate
			flags = append(flags, FlagHumanPrefers)
		}

	default:
		wA := confA * weights.ModelA
		wB := confB * weights.ModelB
		flags = append(flags, FlagModelsConflict)
		switch {
		case wA > wB && a == h:
			label, confidence = h, math.Max(confA, ModelAMatchFloor)
			reason, strength = ReasonModelsAgreeWithHuman, StrengthHigh
		case wB > wA && b == h:
			label, confidence = h, math.Max(confB, ModelBMatchFloor)
			reason, strength = ReasonModelsAgreeWithHuman, StrengthHigh
		case wB-wA > StrongSignalMargin:
			label, confidence = b, confB
			reason, strength = ReasonModelBStrongSignal, StrengthModerate
			flags = append(flags, FlagModelBStrong)
		case wA-wB > StrongSignalMargin:
			label, confidence = a, confA
			reason, strength = ReasonHumanConsensusTie, StrengthModerate
			flags = append(flags, FlagModelAStrong)
		default:
			label, confidence = h, TieConfidence
			reason, strength = ReasonHumanConsensusTie, StrengthModerate
			flags = append(flags, FlagTieDefaultHuman)
		}
	}

	return Result{
		FinalLabel:      label,
		FinalConfidence: confidence,
		ReasonCode:      reason,
		Metrics: Metrics{
			AllAgree:               h == a && a == b,
			AIConsensus:            a == b,
			HumanAIAlignment:       label == h,
			RecommendationStrength: strength,
			Flags:                  flags,
		},
	}
}

func ambiguous() Result {
	return Result{
		ReasonCode: ReasonAmbiguousMissingInput,
		Metrics: Metrics{
			RecommendationStrength: StrengthLow,
			Flags:                  []string{FlagMissingPredictions},
		},
	}
}

func missing(c *Classification) bool {
	return c == nil || c.Label == ""
}

func mean(a, b float64) float64 {
	return (a + b) / 2
}

// ClampConfidence keeps a confidence inside [0,1]; NaN counts as no
// confidence.
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
