package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/wastesort/internal/auth"
	"github.com/example/wastesort/internal/ensemble"
	"github.com/example/wastesort/internal/imagestore"
	"github.com/example/wastesort/internal/repository"
	"github.com/example/wastesort/internal/stats"
	"github.com/example/wastesort/internal/usecase"
)

// MaxUploadSize caps scan image uploads.
const MaxUploadSize = 10 << 20

var (
	errImageRequired    = errors.New("image file or image_data_uri is required")
	errImageTooLarge    = errors.New("image exceeds upload limit")
	errUnsupportedImage = errors.New("unsupported image type")
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ScanService is the use case surface the routes depend on.
type ScanService interface {
	Scan(ctx context.Context, in usecase.ScanInput) (*repository.ScanRecord, error)
	GetScan(ctx context.Context, ownerID, scanID string) (*repository.ScanRecord, error)
	Statistics(ctx context.Context, ownerID string) (*stats.Report, error)
	RecordFeedback(ctx context.Context, ownerID, scanID string, wasCorrect bool, modelType ensemble.ModelType) (*repository.FeedbackAnnotation, error)
}

// ImageReader serves stored scan images.
type ImageReader interface {
	Get(ctx context.Context, imageID string) (*repository.StoredImage, error)
}

type feedbackRequest struct {
	WasCorrect *bool  `json:"was_correct" binding:"required"`
	ModelType  string `json:"model_type" binding:"required"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc ScanService, images ImageReader, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/images/:id", func(c *gin.Context) {
		image, err := images.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondLookupError(c, err, "image not found")
			return
		}
		c.Data(http.StatusOK, image.ContentType, image.Data)
	})

	authorized := router.Group("/", authMiddleware)

	authorized.POST("/scans", func(c *gin.Context) {
		ownerID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		humanLabel := strings.TrimSpace(c.PostForm("human_label"))
		data, status, err := readScanImage(c)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		if humanLabel == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "human_label is required"})
			return
		}

		record, err := svc.Scan(c.Request.Context(), usecase.ScanInput{
			OwnerID:    ownerID,
			OwnerEmail: auth.GetEmail(c.Request.Context()),
			Image:      data,
			HumanLabel: humanLabel,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, scanResponse(record))
	})

	authorized.GET("/scans/:id", func(c *gin.Context) {
		ownerID, _ := auth.GetUserID(c.Request.Context())
		record, err := svc.GetScan(c.Request.Context(), ownerID, c.Param("id"))
		if err != nil {
			respondLookupError(c, err, "scan not found")
			return
		}
		c.JSON(http.StatusOK, scanResponse(record))
	})

	authorized.POST("/scans/:id/feedback", func(c *gin.Context) {
		ownerID, _ := auth.GetUserID(c.Request.Context())

		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "was_correct and model_type are required"})
			return
		}

		feedback, err := svc.RecordFeedback(c.Request.Context(), ownerID, c.Param("id"), *req.WasCorrect, ensemble.ModelType(req.ModelType))
		switch {
		case errors.Is(err, usecase.ErrInvalidModelType), errors.Is(err, usecase.ErrNoLabel):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			respondLookupError(c, err, "scan not found")
			return
		}
		c.JSON(http.StatusCreated, feedback)
	})

	authorized.GET("/stats", func(c *gin.Context) {
		ownerID, _ := auth.GetUserID(c.Request.Context())
		report, err := svc.Statistics(c.Request.Context(), ownerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})
}

// readScanImage returns the scan image from either the "image" file part or
// the "image_data_uri" form field, with the HTTP status to report on failure.
func readScanImage(c *gin.Context) ([]byte, int, error) {
	if uri := c.PostForm("image_data_uri"); uri != "" {
		data, err := imagestore.DecodeDataURI(uri)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		if len(data) > MaxUploadSize {
			return nil, http.StatusRequestEntityTooLarge, errImageTooLarge
		}
		if !allowedImageTypes[http.DetectContentType(data)] {
			return nil, http.StatusUnsupportedMediaType, errUnsupportedImage
		}
		return data, 0, nil
	}

	file, err := c.FormFile("image")
	if err != nil {
		return nil, http.StatusBadRequest, errImageRequired
	}
	if file.Size > MaxUploadSize {
		return nil, http.StatusRequestEntityTooLarge, errImageTooLarge
	}
	if !allowedImageTypes[file.Header.Get("Content-Type")] {
		return nil, http.StatusUnsupportedMediaType, errUnsupportedImage
	}

	src, err := file.Open()
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("unable to open image")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		return nil, http.StatusInternalServerError, errors.New("failed to read image")
	}
	return data, 0, nil
}

func scanResponse(record *repository.ScanRecord) gin.H {
	result := record.Result()
	body := gin.H{
		"scan_id":    record.ScanID,
		"image_ref":  record.ImageRef,
		"human":      optionalClassification(record.Human()),
		"model_a":    optionalClassification(record.ModelA()),
		"model_b":    optionalClassification(record.ModelB()),
		"metrics":    result.Metrics,
		"created_at": record.CreatedAt,
	}
	if result.Missing() {
		body["final_label"] = nil
		body["final_confidence"] = 0
		body["reason_code"] = result.ReasonCode
		body["message"] = "classification unavailable"
		return body
	}
	body["final_label"] = result.FinalLabel
	body["final_confidence"] = result.FinalConfidence
	body["reason_code"] = result.ReasonCode
	return body
}

func optionalClassification(c *ensemble.Classification) interface{} {
	if c == nil {
		return nil
	}
	return c
}

func respondLookupError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
