package server

import (
	"bytes"
	contextpkg "context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/taskmindhq/taskmind/backend/internal/auth"
	"github.com/taskmindhq/taskmind/backend/internal/predict"
	"github.com/taskmindhq/taskmind/backend/internal/profiles"
	"github.com/taskmindhq/taskmind/backend/internal/tasks"
	"gorm.io/gorm"
)

type stubVerifier struct {
	claims auth.FirebaseClaims
	err    error
	calls  int
}

func (s *stubVerifier) Verify(contextpkg.Context, string) (auth.FirebaseClaims, error) {
	s.calls++
	if s.err != nil {
		return auth.FirebaseClaims{}, s.err
	}
	return s.claims, nil
}

type stubPredictor struct {
	label        int
	err          error
	featureCount int
}

func (s *stubPredictor) Predict([]float64) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.label, nil
}

func (s *stubPredictor) FeatureCount() int {
	return s.featureCount
}

type routerFixture struct {
	handler  http.Handler
	verifier *stubVerifier
	db       *gorm.DB
}

func newRouterFixture(t *testing.T, predictor Predictor) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&profiles.Profile{}, &tasks.Task{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	profileService, err := profiles.NewService(profiles.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build profile service: %v", err)
	}
	taskService, err := tasks.NewService(tasks.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: tasks.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build task service: %v", err)
	}

	verifier := &stubVerifier{
		claims: auth.FirebaseClaims{
			UID:     "uid-1",
			Email:   "user@example.com",
			Name:    "Example User",
			Picture: "https://example.com/avatar.png",
		},
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenVerifier:  verifier,
		ProfileService: profileService,
		TaskService:    taskService,
		Predictor:      predictor,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &routerFixture{handler: handler, verifier: verifier, db: db}
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)

	decoded := map[string]any{}
	if recorder.Body.Len() > 0 && recorder.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, decoded
}

func TestHomeRespondsUnconditionally(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder, body := fixture.do(t, http.MethodGet, "/", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["message"] != "Backend is running!" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestProtectedRoutesRejectMissingHeader(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/sync-profile"},
		{http.MethodGet, "/tasks"},
		{http.MethodPost, "/tasks"},
		{http.MethodDelete, "/tasks"},
	} {
		recorder, body := fixture.do(t, route.method, route.path, "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: unexpected status %d", route.method, route.path, recorder.Code)
		}
		if body["error"] != "Authorization token missing" {
			t.Fatalf("%s %s: unexpected body %v", route.method, route.path, body)
		}
	}
	if fixture.verifier.calls != 0 {
		t.Fatalf("verifier must not run without a bearer header, got %d calls", fixture.verifier.calls)
	}
}

func TestProtectedRoutesRejectFailedVerification(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.verifier.err = errors.New("token expired")

	recorder, body := fixture.do(t, http.MethodGet, "/tasks", "bad-token", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["error"] != "Token verification failed: token expired" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestVerifyIDTokenEndpoint(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder, body := fixture.do(t, http.MethodPost, "/verifyIdToken", "", map[string]any{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d for missing token", recorder.Code)
	}
	if body["error"] != "Missing ID token" {
		t.Fatalf("unexpected body: %v", body)
	}

	recorder, body = fixture.do(t, http.MethodPost, "/verifyIdToken", "", map[string]any{"idToken": "raw-token"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d for valid token", recorder.Code)
	}
	if body["uid"] != "uid-1" {
		t.Fatalf("unexpected body: %v", body)
	}

	fixture.verifier.err = errors.New("signature invalid")
	recorder, body = fixture.do(t, http.MethodPost, "/verifyIdToken", "", map[string]any{"idToken": "raw-token"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d for rejected token", recorder.Code)
	}
	if body["error"] != "signature invalid" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestProfileSyncUpsertsFromInjectedIdentity(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder, body := fixture.do(t, http.MethodPost, "/sync-profile", "good-token", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", recorder.Code, body)
	}
	if body["message"] != "Profile synced" {
		t.Fatalf("unexpected body: %v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected profile payload, got %v", body["data"])
	}
	if data["id"] != "uid-1" || data["email"] != "user@example.com" {
		t.Fatalf("unexpected profile data: %v", data)
	}

	// Second sync with changed claims overwrites, never appends.
	fixture.verifier.claims.Email = "renamed@example.com"
	recorder, body = fixture.do(t, http.MethodPost, "/sync-profile", "good-token", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d on second sync", recorder.Code)
	}
	data, ok = body["data"].(map[string]any)
	if !ok || data["email"] != "renamed@example.com" {
		t.Fatalf("expected overwritten email, got %v", body["data"])
	}

	var count int64
	if err := fixture.db.Model(&profiles.Profile{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single profile row, got %d", count)
	}
}

func TestTaskCRUDRoundTrip(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder, _ := fixture.do(t, http.MethodPost, "/tasks", "good-token", map[string]any{
		"description": "Buy milk",
		"date":        "2024-01-01",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected create status %d: %s", recorder.Code, recorder.Body.String())
	}
	var created []tasks.Task
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created rows: %v", err)
	}
	if len(created) != 1 || created[0].Description != "Buy milk" {
		t.Fatalf("unexpected created payload: %+v", created)
	}
	if created[0].UserID != "uid-1" {
		t.Fatalf("expected caller uid as owner, got %q", created[0].UserID)
	}

	recorder, _ = fixture.do(t, http.MethodGet, "/tasks", "good-token", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected list status %d", recorder.Code)
	}
	var listed []tasks.Task
	if err := json.Unmarshal(recorder.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode listed rows: %v", err)
	}
	if len(listed) != 1 || listed[0].Description != "Buy milk" || listed[0].Date != "2024-01-01" {
		t.Fatalf("unexpected listed rows: %+v", listed)
	}

	recorder, body := fixture.do(t, http.MethodDelete, "/tasks", "good-token", map[string]any{"id": listed[0].ID})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected delete status %d", recorder.Code)
	}
	if body["message"] != "Task deleted" {
		t.Fatalf("unexpected delete body: %v", body)
	}

	recorder, _ = fixture.do(t, http.MethodGet, "/tasks", "good-token", nil)
	var remaining []tasks.Task
	if err := json.Unmarshal(recorder.Body.Bytes(), &remaining); err != nil {
		t.Fatalf("failed to decode remaining rows: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty task list after delete, got %+v", remaining)
	}
}

func TestTaskCreateValidatesFields(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder, body := fixture.do(t, http.MethodPost, "/tasks", "good-token", map[string]any{"description": "x"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["error"] != "Missing description or date" {
		t.Fatalf("unexpected body: %v", body)
	}

	var count int64
	if err := fixture.db.Model(&tasks.Task{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected create must not reach the store, got %d rows", count)
	}
}

func TestTaskDeleteValidatesAndStaysIdempotent(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder, body := fixture.do(t, http.MethodDelete, "/tasks", "good-token", map[string]any{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["error"] != "Missing task ID" {
		t.Fatalf("unexpected body: %v", body)
	}

	// Deleting an id that never existed still reports success.
	recorder, body = fixture.do(t, http.MethodDelete, "/tasks", "good-token", map[string]any{"id": "ghost"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["message"] != "Task deleted" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestTaskDeleteCannotTouchForeignRows(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	foreign := tasks.Task{ID: "task-foreign", UserID: "somebody-else", Description: "theirs", Date: "2024-01-01"}
	if err := fixture.db.Create(&foreign).Error; err != nil {
		t.Fatalf("failed to seed foreign task: %v", err)
	}

	recorder, body := fixture.do(t, http.MethodDelete, "/tasks", "good-token", map[string]any{"id": "task-foreign"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["message"] != "Task deleted" {
		t.Fatalf("unexpected body: %v", body)
	}

	var count int64
	if err := fixture.db.Model(&tasks.Task{}).Where("id = ?", "task-foreign").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("foreign row must survive, got %d rows", count)
	}
}

func TestPredictFallsBackToHeuristic(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder, body := fixture.do(t, http.MethodPost, "/predict", "", map[string]any{
		"task_description": "Finish report, deadline tomorrow",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["predicted_category"] != predict.CategoryUrgent {
		t.Fatalf("unexpected body: %v", body)
	}

	recorder, body = fixture.do(t, http.MethodPost, "/predict", "", map[string]any{
		"task_description": "Buy milk",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["predicted_category"] != predict.CategoryNormal {
		t.Fatalf("unexpected body: %v", body)
	}

	recorder, body = fixture.do(t, http.MethodPost, "/predict", "", map[string]any{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["error"] != "Missing input for prediction" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestPredictUsesModelWhenLoaded(t *testing.T) {
	fixture := newRouterFixture(t, &stubPredictor{label: 2, featureCount: 3})

	recorder, body := fixture.do(t, http.MethodPost, "/predict", "", map[string]any{
		"features": []float64{0.1, 0.2, 0.3},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", recorder.Code, body)
	}
	if body["prediction"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestPredictFeatureMismatchFailsFast(t *testing.T) {
	mismatch := fmt.Errorf("%w: got 1 features, want 3", predict.ErrFeatureLength)
	fixture := newRouterFixture(t, &stubPredictor{err: mismatch, featureCount: 3})

	recorder, body := fixture.do(t, http.MethodPost, "/predict", "", map[string]any{
		"features": []float64{0.1},
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d: %v", recorder.Code, body)
	}
	if body["error"] == "" {
		t.Fatalf("expected explanatory error body, got %v", body)
	}
}

func TestPredictInternalFailure(t *testing.T) {
	fixture := newRouterFixture(t, &stubPredictor{err: errors.New("matrix exploded"), featureCount: 3})

	recorder, body := fixture.do(t, http.MethodPost, "/predict", "", map[string]any{
		"features": []float64{0.1, 0.2, 0.3},
	})
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if body["error"] != "Prediction failed" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestNewHTTPHandlerValidatesDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingTokenVerifier) {
		t.Fatalf("expected missing verifier error, got %v", err)
	}
}
