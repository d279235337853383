package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wastesort/internal/auth"
	"github.com/example/wastesort/internal/ensemble"
	"github.com/example/wastesort/internal/repository"
	"github.com/example/wastesort/internal/stats"
	"github.com/example/wastesort/internal/usecase"
)

const testJWTSecret = "test-secret"

type stubService struct {
	scanInput   usecase.ScanInput
	scanRecord  *repository.ScanRecord
	scanErr     error
	getRecord   *repository.ScanRecord
	getErr      error
	report      *stats.Report
	feedback    *repository.FeedbackAnnotation
	feedbackErr error
}

func (s *stubService) Scan(ctx context.Context, in usecase.ScanInput) (*repository.ScanRecord, error) {
	s.scanInput = in
	return s.scanRecord, s.scanErr
}

func (s *stubService) GetScan(ctx context.Context, ownerID, scanID string) (*repository.ScanRecord, error) {
	return s.getRecord, s.getErr
}

func (s *stubService) Statistics(ctx context.Context, ownerID string) (*stats.Report, error) {
	return s.report, nil
}

func (s *stubService) RecordFeedback(ctx context.Context, ownerID, scanID string, wasCorrect bool, modelType ensemble.ModelType) (*repository.FeedbackAnnotation, error) {
	return s.feedback, s.feedbackErr
}

type stubImages struct {
	image *repository.StoredImage
}

func (s *stubImages) Get(ctx context.Context, imageID string) (*repository.StoredImage, error) {
	if s.image == nil || s.image.ImageID != imageID {
		return nil, repository.ErrNotFound
	}
	return s.image, nil
}

func newTestRouter(svc ScanService, images ImageReader) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc, images, auth.JWTMiddleware(testJWTSecret, ""))
	return router
}

func TestScanRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubImages{})

	body, contentType := buildMultipartBody(t, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1), "plastic")
	resp := serve(t, router, http.MethodPost, "/scans", body, contentType, buildTestToken(t, "user-123"))

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestScanRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubImages{})

	body, contentType := buildMultipartBody(t, "text/plain", []byte("hello"), "plastic")
	resp := serve(t, router, http.MethodPost, "/scans", body, contentType, buildTestToken(t, "user-123"))

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestScanRequiresHumanLabel(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubImages{})

	body, contentType := buildMultipartBody(t, "image/png", []byte("png"), "  ")
	resp := serve(t, router, http.MethodPost, "/scans", body, contentType, buildTestToken(t, "user-123"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestScanRequiresToken(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubImages{})

	body, contentType := buildMultipartBody(t, "image/png", []byte("png"), "plastic")
	resp := serve(t, router, http.MethodPost, "/scans", body, contentType, "")

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestScanReturnsVerdict(t *testing.T) {
	human := &ensemble.Classification{Label: "trash"}
	a := &ensemble.Classification{Label: "plastic", Confidence: 0.95}
	b := &ensemble.Classification{Label: "plastic", Confidence: 0.92}
	record := repository.NewScanRecord("scan-1", "user-123", "", "http://img/1", human, a, b, ensemble.Decide(human, a, b), time.Now())
	svc := &stubService{scanRecord: record}
	router := newTestRouter(svc, &stubImages{})

	body, contentType := buildMultipartBody(t, "image/jpeg", []byte("jpeg"), "trash")
	resp := serve(t, router, http.MethodPost, "/scans", body, contentType, buildTestToken(t, "user-123"))

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "user-123", svc.scanInput.OwnerID)
	assert.Equal(t, "trash", svc.scanInput.HumanLabel)
	assert.Equal(t, []byte("jpeg"), svc.scanInput.Image)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, "plastic", payload["final_label"])
	assert.Equal(t, "MODELS_AGREE_OVERRIDE", payload["reason_code"])
	assert.NotContains(t, payload, "message")
}

func TestScanAcceptsDataURI(t *testing.T) {
	human := &ensemble.Classification{Label: "glass"}
	svc := &stubService{scanRecord: repository.NewScanRecord("scan-3", "user-123", "", "", human, nil, nil, ensemble.Decide(human, nil, nil), time.Now())}
	router := newTestRouter(svc, &stubImages{})
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	body, contentType := buildFormBody(t, map[string]string{
		"human_label":    "glass",
		"image_data_uri": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
	resp := serve(t, router, http.MethodPost, "/scans", body, contentType, buildTestToken(t, "user-123"))

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, png, svc.scanInput.Image)
	assert.Equal(t, "glass", svc.scanInput.HumanLabel)
}

func TestScanRejectsBadDataURI(t *testing.T) {
	token := buildTestToken(t, "user-123")
	tests := map[string]struct {
		uri  string
		want int
	}{
		"not base64":   {"data:image/png;base64,!!!", http.StatusBadRequest},
		"not data uri": {"https://example.com/a.png", http.StatusBadRequest},
		"text payload": {"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello")), http.StatusUnsupportedMediaType},
		"too large":    {"data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, MaxUploadSize+1)), http.StatusRequestEntityTooLarge},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc := &stubService{}
			router := newTestRouter(svc, &stubImages{})
			body, contentType := buildFormBody(t, map[string]string{"human_label": "glass", "image_data_uri": tt.uri})

			resp := serve(t, router, http.MethodPost, "/scans", body, contentType, token)
			assert.Equal(t, tt.want, resp.Code)
			assert.Nil(t, svc.scanInput.Image)
		})
	}
}

func TestScanRequiresImage(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubImages{})

	body, contentType := buildFormBody(t, map[string]string{"human_label": "glass"})
	resp := serve(t, router, http.MethodPost, "/scans", body, contentType, buildTestToken(t, "user-123"))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetScanRendersAmbiguous(t *testing.T) {
	human := &ensemble.Classification{Label: "glass"}
	record := repository.NewScanRecord("scan-2", "user-123", "", "", human, nil, nil, ensemble.Decide(human, nil, nil), time.Now())
	router := newTestRouter(&stubService{getRecord: record}, &stubImages{})

	resp := serve(t, router, http.MethodGet, "/scans/scan-2", nil, "", buildTestToken(t, "user-123"))

	require.Equal(t, http.StatusOK, resp.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Nil(t, payload["final_label"])
	assert.Nil(t, payload["model_a"])
	assert.Equal(t, "classification unavailable", payload["message"])
}

func TestGetScanNotFound(t *testing.T) {
	router := newTestRouter(&stubService{getErr: repository.ErrNotFound}, &stubImages{})

	resp := serve(t, router, http.MethodGet, "/scans/missing", nil, "", buildTestToken(t, "user-123"))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestFeedbackValidation(t *testing.T) {
	svc := &stubService{feedbackErr: usecase.ErrInvalidModelType}
	router := newTestRouter(svc, &stubImages{})
	token := buildTestToken(t, "user-123")

	resp := serve(t, router, http.MethodPost, "/scans/scan-1/feedback", strings.NewReader(`{"model_type":"model_a"}`), "application/json", token)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = serve(t, router, http.MethodPost, "/scans/scan-1/feedback", strings.NewReader(`{"was_correct":false,"model_type":"rexnet"}`), "application/json", token)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	svc.feedbackErr = nil
	svc.feedback = &repository.FeedbackAnnotation{ScanID: "scan-1", ModelType: "model_a", Category: "glass"}
	resp = serve(t, router, http.MethodPost, "/scans/scan-1/feedback", strings.NewReader(`{"was_correct":false,"model_type":"model_a"}`), "application/json", token)
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestStatsReturnsReport(t *testing.T) {
	report := stats.Summarize(nil)
	router := newTestRouter(&stubService{report: &report}, &stubImages{})

	resp := serve(t, router, http.MethodGet, "/stats", nil, "", buildTestToken(t, "user-123"))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"no_data":true`)
}

func TestImageIsPublic(t *testing.T) {
	images := &stubImages{image: &repository.StoredImage{ImageID: "img-1", ContentType: "image/png", Data: []byte("png")}}
	router := newTestRouter(&stubService{}, images)

	resp := serve(t, router, http.MethodGet, "/images/img-1", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "image/png", resp.Header().Get("Content-Type"))
	assert.Equal(t, "png", resp.Body.String())

	resp = serve(t, router, http.MethodGet, "/images/other", nil, "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func serve(t *testing.T, router *gin.Engine, method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte, humanLabel string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("human_label", humanLabel); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildFormBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := auth.Claims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
