package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/wastesort/internal/classifier"
	"github.com/example/wastesort/internal/logging"
)

// ClassifyMethod is the unary RPC every model service exposes. The request
// is the raw image as a BytesValue; the response is a Struct with "label"
// and "confidence" fields.
const ClassifyMethod = "/wastesort.v1.Classifier/Classify"

// ErrMalformedResponse is returned when a model reply lacks a label.
var ErrMalformedResponse = errors.New("malformed classifier response")

// DialClassifier returns a ready-to-use gRPC client for one model service.
func DialClassifier(ctx context.Context, model, addr string, logger *zap.Logger, opts ...grpc.DialOption) (classifier.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("model", model), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClassifier(model, conn, logger), conn, nil
}

// NewClassifier wraps an existing connection.
func NewClassifier(model string, conn grpc.ClientConnInterface, logger *zap.Logger) classifier.Client {
	return &grpcClassifier{model: model, conn: conn, logger: logger.Named(model)}
}

type grpcClassifier struct {
	model  string
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcClassifier) Classify(ctx context.Context, imageBytes []byte) (*classifier.Prediction, error) {
	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, ClassifyMethod, wrapperspb.Bytes(imageBytes), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.classify", "", err)
		g.logger.Error("classifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	fields := resp.GetFields()
	label := fields["label"].GetStringValue()
	if label == "" {
		wrapped := logging.NewOperationError("grpcclient.classify", "", fmt.Errorf("%w: missing label", ErrMalformedResponse))
		g.logger.Warn("classifier returned no label", zap.Error(wrapped))
		return nil, wrapped
	}

	confidence := fields["confidence"].GetNumberValue()
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		wrapped := logging.NewOperationError("grpcclient.classify", "", fmt.Errorf("%w: non-finite confidence", ErrMalformedResponse))
		g.logger.Warn("classifier returned unusable confidence", zap.Error(wrapped))
		return nil, wrapped
	}

	return &classifier.Prediction{
		Model:      g.model,
		Label:      label,
		Confidence: confidence,
	}, nil
}
