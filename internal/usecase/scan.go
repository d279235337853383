package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/wastesort/internal/category"
	"github.com/example/wastesort/internal/classifier"
	"github.com/example/wastesort/internal/ensemble"
	"github.com/example/wastesort/internal/logging"
	"github.com/example/wastesort/internal/repository"
	"github.com/example/wastesort/internal/stats"
)

const (
	scanCacheTTL        = 5 * time.Minute
	statsCacheTTL       = time.Minute
	statsVersionTTL     = 24 * time.Hour
	initialStatsVersion = "0"
)

var (
	// ErrInvalidModelType is returned for feedback naming an unknown model.
	ErrInvalidModelType = errors.New("invalid model type")
	// ErrNoLabel is returned for feedback on a model that produced no label
	// for the scan.
	ErrNoLabel = errors.New("scan has no label for model")
)

// ScanRepository defines the persistence operations needed by the use case.
type ScanRepository interface {
	SaveScan(ctx context.Context, scan *repository.ScanRecord) error
	FindScan(ctx context.Context, scanID, ownerID string) (*repository.ScanRecord, error)
	ListScansByOwner(ctx context.Context, ownerID string) ([]*repository.ScanRecord, error)
	SaveFeedback(ctx context.Context, feedback *repository.FeedbackAnnotation) error
	ListFeedbackByOwner(ctx context.Context, ownerID string) ([]*repository.FeedbackAnnotation, error)
}

// ImageStore persists captured images and returns their URL.
type ImageStore interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// ScanInput is one scan submitted by a user.
type ScanInput struct {
	OwnerID    string
	OwnerEmail string
	Image      []byte
	HumanLabel string
}

// ScanUseCase encapsulates business logic for the scan flow.
type ScanUseCase struct {
	repo           ScanRepository
	cache          Cache
	images         ImageStore
	modelA         classifier.Client
	modelB         classifier.Client
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
	newID          func() string
}

// NewScanUseCase constructs a new use case instance.
func NewScanUseCase(repo ScanRepository, cache Cache, images ImageStore, modelA, modelB classifier.Client, logger *zap.Logger) *ScanUseCase {
	return &ScanUseCase{
		repo:           repo,
		cache:          cache,
		images:         images,
		modelA:         modelA,
		modelB:         modelB,
		logger:         logger.Named("scan_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Scan uploads the image, asks both models for a prediction, reconciles them
// with the human label and stores the record. A model that fails leaves its
// prediction missing and the record ambiguous; only image upload, persistence
// and cancellation are fatal.
func (uc *ScanUseCase) Scan(ctx context.Context, in ScanInput) (*repository.ScanRecord, error) {
	scanID := uc.newID()
	opLogger := logging.WithOperation(uc.logger, "usecase.scan", scanID)

	imageRef, err := uc.images.Upload(ctx, in.Image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.upload_image", scanID, err)
		opLogger.Error("image upload failed", zap.Error(wrapped))
		return nil, wrapped
	}

	modelA, modelB, err := uc.classify(ctx, scanID, in.Image)
	if err != nil {
		opLogger.Error("classification aborted", zap.Error(err))
		return nil, err
	}

	human := humanClassification(in.HumanLabel)
	if human != nil && !category.Valid(human.Label) {
		opLogger.Warn("human label outside category vocabulary", zap.String("label", in.HumanLabel))
	}
	result := ensemble.DecideWithAccuracy(human, modelA, modelB, uc.loadAccuracy(ctx, scanID, in.OwnerID))
	if result.Missing() {
		opLogger.Warn("scan is ambiguous",
			zap.Bool("human", human != nil),
			zap.Bool("model_a", modelA != nil),
			zap.Bool("model_b", modelB != nil))
	}

	record := repository.NewScanRecord(scanID, in.OwnerID, in.OwnerEmail, imageRef, human, modelA, modelB, result, uc.now().UTC())
	if err := uc.repo.SaveScan(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_scan", scanID, err)
		opLogger.Error("failed to persist scan", zap.Error(wrapped))
		return nil, wrapped
	}

	uc.cacheScan(ctx, record)
	uc.bumpStatsVersion(ctx, scanID, in.OwnerID)

	opLogger.Info("scan recorded",
		zap.String("final_label", record.FinalLabel),
		zap.String("reason_code", record.ReasonCode),
		zap.Float64("final_confidence", record.FinalConfidence))
	return record, nil
}

// GetScan retrieves a cached scan or loads it from persistence.
func (uc *ScanUseCase) GetScan(ctx context.Context, ownerID, scanID string) (*repository.ScanRecord, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_scan", scanID)
	if cached, err := uc.withRedisGet(ctx, scanID, "cache.get.scan", scanCacheKey(scanID)); err == nil {
		var record repository.ScanRecord
		if err := json.Unmarshal([]byte(cached), &record); err != nil {
			opLogger.Warn("failed to decode cached scan", zap.Error(err))
		} else if record.OwnerID == ownerID {
			return &record, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	record, err := uc.repo.FindScan(ctx, scanID, ownerID)
	if err != nil {
		return nil, err
	}
	uc.cacheScan(ctx, record)
	return record, nil
}

// Statistics summarises every scan of an owner. Reports are cached briefly
// under the owner's stats version, which every new scan replaces.
func (uc *ScanUseCase) Statistics(ctx context.Context, ownerID string) (*stats.Report, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.statistics", "")

	version, cacheable := uc.statsVersion(ctx, ownerID)
	key := statsCacheKey(ownerID, version)
	if cacheable {
		if cached, err := uc.withRedisGet(ctx, "", "cache.get.stats", key); err == nil {
			var report stats.Report
			if err := json.Unmarshal([]byte(cached), &report); err == nil {
				return &report, nil
			}
			opLogger.Warn("failed to decode cached statistics")
		} else if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	scans, err := uc.repo.ListScansByOwner(ctx, ownerID)
	if err != nil {
		return nil, logging.NewOperationError("usecase.list_scans", "", err)
	}
	records := make([]stats.Record, len(scans))
	for i, scan := range scans {
		records[i] = scan.StatsRecord()
	}
	report := stats.Summarize(records)

	if !cacheable {
		return &report, nil
	}
	if serialized, err := json.Marshal(report); err != nil {
		opLogger.Warn("failed to encode statistics", zap.Error(err))
	} else if err := uc.withRedisRetry(ctx, "", "cache.set.stats", func() error {
		return uc.cache.Set(ctx, key, string(serialized), statsCacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache statistics", zap.Error(err))
	}
	return &report, nil
}

// statsVersion returns the owner's current stats version. The report is
// not cacheable when the version cannot be read.
func (uc *ScanUseCase) statsVersion(ctx context.Context, ownerID string) (string, bool) {
	version, err := uc.withRedisGet(ctx, "", "cache.get.stats_version", statsVersionKey(ownerID))
	switch {
	case err == nil:
		return version, true
	case errors.Is(err, redis.Nil):
		return initialStatsVersion, true
	default:
		logging.WithOperation(uc.logger, "usecase.statistics", "").Warn("failed to read stats version", zap.Error(err))
		return "", false
	}
}

// RecordFeedback appends the user's verdict on one model's label for a scan.
func (uc *ScanUseCase) RecordFeedback(ctx context.Context, ownerID, scanID string, wasCorrect bool, modelType ensemble.ModelType) (*repository.FeedbackAnnotation, error) {
	if !modelType.Valid() {
		return nil, ErrInvalidModelType
	}

	scan, err := uc.repo.FindScan(ctx, scanID, ownerID)
	if err != nil {
		return nil, err
	}

	var label string
	switch modelType {
	case ensemble.ModelA:
		label = scan.ModelALabel
	case ensemble.ModelB:
		label = scan.ModelBLabel
	case ensemble.Combined:
		label = scan.FinalLabel
	}
	if label == "" {
		return nil, ErrNoLabel
	}

	feedback := &repository.FeedbackAnnotation{
		ScanID:     scanID,
		OwnerID:    ownerID,
		WasCorrect: wasCorrect,
		Category:   label,
		ModelType:  string(modelType),
		CreatedAt:  uc.now().UTC(),
	}
	if err := uc.repo.SaveFeedback(ctx, feedback); err != nil {
		wrapped := logging.NewOperationError("usecase.save_feedback", scanID, err)
		logging.WithOperation(uc.logger, "usecase.record_feedback", scanID).Error("failed to persist feedback", zap.Error(wrapped))
		return nil, wrapped
	}
	return feedback, nil
}

// AccuracyModel builds the owner's per-category model accuracy from their
// feedback annotations.
func (uc *ScanUseCase) AccuracyModel(ctx context.Context, ownerID string) (*ensemble.AccuracyModel, error) {
	feedback, err := uc.repo.ListFeedbackByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	model := ensemble.NewAccuracyModel()
	for _, f := range feedback {
		model.Record(f.Category, ensemble.ModelType(f.ModelType), f.WasCorrect)
	}
	return model, nil
}

func (uc *ScanUseCase) loadAccuracy(ctx context.Context, scanID, ownerID string) *ensemble.AccuracyModel {
	model, err := uc.AccuracyModel(ctx, ownerID)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.load_accuracy", scanID).Warn("using default weights", zap.Error(err))
		return nil
	}
	return model
}

func (uc *ScanUseCase) classify(ctx context.Context, scanID string, image []byte) (*ensemble.Classification, *ensemble.Classification, error) {
	var modelA, modelB *ensemble.Classification
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		modelA, err = uc.predict(gctx, ctx, scanID, string(ensemble.ModelA), uc.modelA, image)
		return err
	})
	g.Go(func() error {
		var err error
		modelB, err = uc.predict(gctx, ctx, scanID, string(ensemble.ModelB), uc.modelB, image)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return modelA, modelB, nil
}

// predict returns nil for an unavailable prediction. It only fails when the
// caller's context is done.
func (uc *ScanUseCase) predict(ctx, parent context.Context, scanID, model string, client classifier.Client, image []byte) (*ensemble.Classification, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", scanID).With(zap.String("model", model))
	if client == nil {
		opLogger.Warn("no client configured")
		return nil, nil
	}

	pred, err := client.Classify(ctx, image)
	if err != nil {
		if parent.Err() != nil {
			return nil, logging.NewOperationError("usecase.classify", scanID, parent.Err())
		}
		opLogger.Warn("prediction unavailable", zap.Error(err))
		return nil, nil
	}

	label, known := category.Normalize(pred.Label)
	if !known {
		opLogger.Warn("label outside category vocabulary", zap.String("label", pred.Label))
	}
	confidence := ensemble.ClampConfidence(pred.Confidence)
	if confidence != pred.Confidence {
		opLogger.Warn("confidence out of range", zap.Float64("confidence", pred.Confidence))
	}
	return &ensemble.Classification{Label: label, Confidence: confidence}, nil
}

func (uc *ScanUseCase) cacheScan(ctx context.Context, record *repository.ScanRecord) {
	serialized, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := uc.withRedisRetry(ctx, record.ScanID, "cache.set.scan", func() error {
		return uc.cache.Set(ctx, scanCacheKey(record.ScanID), string(serialized), scanCacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.scan", record.ScanID).Warn("failed to cache scan", zap.Error(err))
	}
}

func (uc *ScanUseCase) bumpStatsVersion(ctx context.Context, scanID, ownerID string) {
	if err := uc.withRedisRetry(ctx, scanID, "cache.set.stats_version", func() error {
		return uc.cache.Set(ctx, statsVersionKey(ownerID), scanID, statsVersionTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.stats_version", scanID).Warn("failed to bump statistics version", zap.Error(err))
	}
}

func humanClassification(label string) *ensemble.Classification {
	if label == "" {
		return nil
	}
	normalized, _ := category.Normalize(label)
	return &ensemble.Classification{Label: normalized}
}
