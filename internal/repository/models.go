package repository

import (
	"time"

	"github.com/example/wastesort/internal/ensemble"
	"github.com/example/wastesort/internal/stats"
)

// ScanRecord is one completed scan: the three opinions plus the verdict the
// ensemble produced for them. An empty model label means that prediction
// was unavailable.
type ScanRecord struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	ScanID     string `gorm:"column:scan_id;uniqueIndex;size:64" json:"scan_id"`
	OwnerID    string `gorm:"column:owner_id;index;size:128" json:"owner_id"`
	OwnerEmail string `gorm:"column:owner_email;size:255" json:"owner_email"`
	ImageRef   string `gorm:"column:image_ref;type:text" json:"image_ref"`

	HumanLabel       string  `gorm:"column:human_label;size:64" json:"human_label"`
	ModelALabel      string  `gorm:"column:model_a_label;size:64" json:"model_a_label"`
	ModelAConfidence float64 `gorm:"column:model_a_confidence" json:"model_a_confidence"`
	ModelBLabel      string  `gorm:"column:model_b_label;size:64" json:"model_b_label"`
	ModelBConfidence float64 `gorm:"column:model_b_confidence" json:"model_b_confidence"`

	FinalLabel             string   `gorm:"column:final_label;size:64" json:"final_label"`
	FinalConfidence        float64  `gorm:"column:final_confidence" json:"final_confidence"`
	ReasonCode             string   `gorm:"column:reason_code;size:64" json:"reason_code"`
	AllAgree               bool     `gorm:"column:all_agree" json:"all_agree"`
	AIConsensus            bool     `gorm:"column:ai_consensus" json:"ai_consensus"`
	HumanAIAlignment       bool     `gorm:"column:human_ai_alignment" json:"human_ai_alignment"`
	RecommendationStrength string   `gorm:"column:recommendation_strength;size:16" json:"recommendation_strength"`
	Flags                  []string `gorm:"column:flags;serializer:json" json:"flags"`

	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides the default table name.
func (ScanRecord) TableName() string {
	return "scan_records"
}

// NewScanRecord assembles a record from the inputs and the verdict. Nil
// classifications are stored as empty labels.
func NewScanRecord(scanID, ownerID, ownerEmail, imageRef string, human, modelA, modelB *ensemble.Classification, result ensemble.Result, createdAt time.Time) *ScanRecord {
	rec := &ScanRecord{
		ScanID:                 scanID,
		OwnerID:                ownerID,
		OwnerEmail:             ownerEmail,
		ImageRef:               imageRef,
		FinalLabel:             result.FinalLabel,
		FinalConfidence:        result.FinalConfidence,
		ReasonCode:             string(result.ReasonCode),
		AllAgree:               result.Metrics.AllAgree,
		AIConsensus:            result.Metrics.AIConsensus,
		HumanAIAlignment:       result.Metrics.HumanAIAlignment,
		RecommendationStrength: string(result.Metrics.RecommendationStrength),
		Flags:                  append([]string{}, result.Metrics.Flags...),
		CreatedAt:              createdAt,
	}
	if human != nil {
		rec.HumanLabel = human.Label
	}
	if modelA != nil {
		rec.ModelALabel, rec.ModelAConfidence = modelA.Label, ensemble.ClampConfidence(modelA.Confidence)
	}
	if modelB != nil {
		rec.ModelBLabel, rec.ModelBConfidence = modelB.Label, ensemble.ClampConfidence(modelB.Confidence)
	}
	return rec
}

// Human returns the stored human opinion, or nil if none was recorded.
func (s *ScanRecord) Human() *ensemble.Classification {
	return classification(s.HumanLabel, 0)
}

// ModelA returns the stored model A prediction, or nil if it was unavailable.
func (s *ScanRecord) ModelA() *ensemble.Classification {
	return classification(s.ModelALabel, s.ModelAConfidence)
}

// ModelB returns the stored model B prediction, or nil if it was unavailable.
func (s *ScanRecord) ModelB() *ensemble.Classification {
	return classification(s.ModelBLabel, s.ModelBConfidence)
}

// Result rebuilds the stored ensemble verdict.
func (s *ScanRecord) Result() ensemble.Result {
	flags := s.Flags
	if flags == nil {
		flags = []string{}
	}
	return ensemble.Result{
		FinalLabel:      s.FinalLabel,
		FinalConfidence: s.FinalConfidence,
		ReasonCode:      ensemble.ReasonCode(s.ReasonCode),
		Metrics: ensemble.Metrics{
			AllAgree:               s.AllAgree,
			AIConsensus:            s.AIConsensus,
			HumanAIAlignment:       s.HumanAIAlignment,
			RecommendationStrength: ensemble.Strength(s.RecommendationStrength),
			Flags:                  flags,
		},
	}
}

// StatsRecord projects the scan onto the fields the statistics engine reads.
func (s *ScanRecord) StatsRecord() stats.Record {
	return stats.Record{
		Human:      s.Human(),
		ModelA:     s.ModelA(),
		ModelB:     s.ModelB(),
		FinalLabel: s.FinalLabel,
	}
}

// FeedbackAnnotation records whether the user judged a scan's label correct.
// Annotations are append-only and never modify the scan.
type FeedbackAnnotation struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	ScanID     string    `gorm:"column:scan_id;index;size:64" json:"scan_id"`
	OwnerID    string    `gorm:"column:owner_id;index;size:128" json:"owner_id"`
	WasCorrect bool      `gorm:"column:was_correct" json:"was_correct"`
	Category   string    `gorm:"column:category;size:64" json:"category"`
	ModelType  string    `gorm:"column:model_type;size:16" json:"model_type"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the default table name.
func (FeedbackAnnotation) TableName() string {
	return "feedback_annotations"
}

// StoredImage holds uploaded image bytes behind a public id.
type StoredImage struct {
	ID          uint      `gorm:"primaryKey"`
	ImageID     string    `gorm:"column:image_id;uniqueIndex;size:64"`
	ContentType string    `gorm:"column:content_type;size:64"`
	Data        []byte    `gorm:"column:data"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (StoredImage) TableName() string {
	return "stored_images"
}

func classification(label string, confidence float64) *ensemble.Classification {
	if label == "" {
		return nil
	}
	return &ensemble.Classification{Label: label, Confidence: confidence}
}
