package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/wastesort/internal/ensemble"
	"github.com/example/wastesort/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func testRepository(attempts int) *ScanRepository {
	return &ScanRepository{
		logger:         zap.NewNop(),
		retryAttempts:  attempts,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}
}

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	repo := testRepository(3)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "scan-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetryReturnsOperationError(t *testing.T) {
	repo := testRepository(2)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "scan-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if opErr.ScanID != "scan-2" {
		t.Fatalf("unexpected scan id: %s", opErr.ScanID)
	}
}

func TestExecuteWithRetryMapsNotFound(t *testing.T) {
	repo := testRepository(3)

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "repository.find_scan", "scan-3", func() error {
		attempts++
		return gorm.ErrRecordNotFound
	})

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retries on not found, got %d attempts", attempts)
	}
}

func TestExecuteWithRetryStopsOnCancelledContext(t *testing.T) {
	repo := testRepository(3)
	ctx, cancel := context.WithCancel(context.Background())

	err := repo.executeWithRetry(ctx, "test.operation", "", func() error {
		cancel()
		return transientTestError{}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScanRecordRoundTripsResult(t *testing.T) {
	human := &ensemble.Classification{Label: "trash"}
	modelA := &ensemble.Classification{Label: "plastic", Confidence: 0.95}
	modelB := &ensemble.Classification{Label: "plastic", Confidence: 0.92}
	result := ensemble.Decide(human, modelA, modelB)

	rec := NewScanRecord("scan-4", "owner", "owner@example.com", "http://img/1", human, modelA, modelB, result, time.Unix(0, 0))

	if got := rec.Result(); got.FinalLabel != result.FinalLabel || got.ReasonCode != result.ReasonCode || len(got.Metrics.Flags) != 2 {
		t.Fatalf("unexpected rebuilt result: %+v", got)
	}
	sr := rec.StatsRecord()
	if sr.Human.Label != "trash" || sr.ModelA.Confidence != 0.95 || sr.FinalLabel != "plastic" {
		t.Fatalf("unexpected stats record: %+v", sr)
	}
}

func TestScanRecordMissingPrediction(t *testing.T) {
	human := &ensemble.Classification{Label: "glass"}
	modelA := &ensemble.Classification{Label: "glass", Confidence: 0.7}
	result := ensemble.Decide(human, modelA, nil)

	rec := NewScanRecord("scan-5", "owner", "", "", human, modelA, nil, result, time.Now())

	if rec.ModelB() != nil {
		t.Fatalf("expected missing model b, got %+v", rec.ModelB())
	}
	if !rec.Result().Missing() {
		t.Fatal("expected ambiguous result")
	}
	if rec.FinalLabel != "" {
		t.Fatalf("expected empty final label, got %q", rec.FinalLabel)
	}
}
