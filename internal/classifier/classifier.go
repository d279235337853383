package classifier

import "context"

// Prediction is the label and confidence a model assigns to an image.
type Prediction struct {
	Model      string
	Label      string
	Confidence float64
}

// Client exposes the subset of a model service used by the scan flow.
type Client interface {
	Classify(ctx context.Context, imageBytes []byte) (*Prediction, error)
}
