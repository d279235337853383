package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/wastesort/internal/logging"
	"github.com/example/wastesort/internal/retry"
)

// ErrNotFound is returned when a lookup matches no row for the caller.
var ErrNotFound = errors.New("record not found")

// OpenPostgres connects to Postgres and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logMode gormlogger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(logMode)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// ScanRepository provides persistence APIs for scans, feedback and images.
type ScanRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewScanRepository creates a new repository instance.
func NewScanRepository(db *gorm.DB, logger *zap.Logger) *ScanRepository {
	return &ScanRepository{
		db:             db,
		logger:         logger.Named("scan_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ScanRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ScanRecord{}, &FeedbackAnnotation{}, &StoredImage{})
}

// SaveScan appends a scan record. Records are never updated afterwards.
func (r *ScanRepository) SaveScan(ctx context.Context, scan *ScanRecord) error {
	return r.executeWithRetry(ctx, "repository.save_scan", scan.ScanID, func() error {
		return r.db.WithContext(ctx).Create(scan).Error
	})
}

// FindScan retrieves a scan matching the id and owner.
func (r *ScanRepository) FindScan(ctx context.Context, scanID, ownerID string) (*ScanRecord, error) {
	var scan ScanRecord
	err := r.executeWithRetry(ctx, "repository.find_scan", scanID, func() error {
		return r.db.WithContext(ctx).First(&scan, "scan_id = ? AND owner_id = ?", scanID, ownerID).Error
	})
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// ListScansByOwner returns every scan of an owner in creation order.
func (r *ScanRepository) ListScansByOwner(ctx context.Context, ownerID string) ([]*ScanRecord, error) {
	var scans []*ScanRecord
	err := r.executeWithRetry(ctx, "repository.list_scans", "", func() error {
		return r.db.WithContext(ctx).
			Where("owner_id = ?", ownerID).
			Order("created_at ASC").
			Order("id ASC").
			Find(&scans).Error
	})
	if err != nil {
		return nil, err
	}
	return scans, nil
}

// SaveFeedback appends a feedback annotation.
func (r *ScanRepository) SaveFeedback(ctx context.Context, feedback *FeedbackAnnotation) error {
	return r.executeWithRetry(ctx, "repository.save_feedback", feedback.ScanID, func() error {
		return r.db.WithContext(ctx).Create(feedback).Error
	})
}

// ListFeedbackByOwner returns every feedback annotation left by an owner.
func (r *ScanRepository) ListFeedbackByOwner(ctx context.Context, ownerID string) ([]*FeedbackAnnotation, error) {
	var feedback []*FeedbackAnnotation
	err := r.executeWithRetry(ctx, "repository.list_feedback", "", func() error {
		return r.db.WithContext(ctx).
			Where("owner_id = ?", ownerID).
			Order("created_at ASC").
			Find(&feedback).Error
	})
	if err != nil {
		return nil, err
	}
	return feedback, nil
}

// SaveImage stores uploaded image bytes.
func (r *ScanRepository) SaveImage(ctx context.Context, image *StoredImage) error {
	return r.executeWithRetry(ctx, "repository.save_image", "", func() error {
		return r.db.WithContext(ctx).Create(image).Error
	})
}

// FindImage loads a stored image by its public id.
func (r *ScanRepository) FindImage(ctx context.Context, imageID string) (*StoredImage, error) {
	var image StoredImage
	err := r.executeWithRetry(ctx, "repository.find_image", "", func() error {
		return r.db.WithContext(ctx).First(&image, "image_id = ?", imageID).Error
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *ScanRepository) executeWithRetry(ctx context.Context, operation, scanID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, scanID)

	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, scanID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return logging.NewOperationError(operation, scanID, ErrNotFound)
		}
		if !retry.IsTransient(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, scanID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, scanID, err)
}
