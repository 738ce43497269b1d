package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskmindhq/taskmind/backend/internal/auth"
	"github.com/taskmindhq/taskmind/backend/internal/metrics"
	"github.com/taskmindhq/taskmind/backend/internal/predict"
	"github.com/taskmindhq/taskmind/backend/internal/profiles"
	"github.com/taskmindhq/taskmind/backend/internal/tasks"
	"go.uber.org/zap"
)

const (
	identityContextKey = "taskmind_identity"
	userIDContextKey   = "taskmind_user_id"
)

var (
	errMissingTokenVerifier  = errors.New("token verifier dependency required")
	errMissingProfileService = errors.New("profile service dependency required")
	errMissingTaskService    = errors.New("task service dependency required")
)

// TokenVerifier verifies a raw bearer credential against the identity provider.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.FirebaseClaims, error)
}

// Predictor maps a fixed-length feature vector to an integer class label.
type Predictor interface {
	Predict(features []float64) (int, error)
	FeatureCount() int
}

// Dependencies wires the handler graph. Predictor, Metrics and
// MetricsGatherer are optional; everything else is required.
type Dependencies struct {
	TokenVerifier   TokenVerifier
	ProfileService  *profiles.Service
	TaskService     *tasks.Service
	Predictor       Predictor
	Metrics         *metrics.Collector
	MetricsGatherer prometheus.Gatherer
	Logger          *zap.Logger
}

// NewHTTPHandler builds the gin router with all routes registered.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenVerifier == nil {
		return nil, errMissingTokenVerifier
	}
	if deps.ProfileService == nil {
		return nil, errMissingProfileService
	}
	if deps.TaskService == nil {
		return nil, errMissingTaskService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}

	handler := &httpHandler{
		verifier:       deps.TokenVerifier,
		profileService: deps.ProfileService,
		taskService:    deps.TaskService,
		predictor:      deps.Predictor,
		collector:      deps.Metrics,
		logger:         logger,
	}

	// Auth is decided per route. /predict is reachable without a token:
	// the upstream contract keeps it open even though it is the only
	// data-touching route without a gate.
	router.GET("/", handler.handleHome)
	router.POST("/verifyIdToken", handler.handleVerifyToken)
	router.POST("/predict", handler.handlePredict)
	if deps.MetricsGatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{})))
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/sync-profile", handler.handleProfileSync)
	protected.GET("/tasks", handler.handleTaskList)
	protected.POST("/tasks", handler.handleTaskCreate)
	protected.DELETE("/tasks", handler.handleTaskDelete)

	return router, nil
}

type httpHandler struct {
	verifier       TokenVerifier
	profileService *profiles.Service
	taskService    *tasks.Service
	predictor      Predictor
	collector      *metrics.Collector
	logger         *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}
	claims, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		// Expired tokens are routine client churn, not a security signal.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token verification failed", zap.Error(err))
		} else {
			h.logger.Warn("token verification failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token verification failed: " + err.Error()})
		return
	}
	c.Set(identityContextKey, claims)
	c.Set(userIDContextKey, claims.UID)
	c.Next()
}

func (h *httpHandler) handleHome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Backend is running!"})
}

type verifyTokenPayload struct {
	IDToken string `json:"idToken"`
}

func (h *httpHandler) handleVerifyToken(c *gin.Context) {
	var request verifyTokenPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing ID token"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("id token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"uid": claims.UID})
}

func (h *httpHandler) handleProfileSync(c *gin.Context) {
	claims, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	profile, err := h.profileService.Sync(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("profile sync failed", zap.String("uid", claims.UID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Profile sync failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile synced", "data": profile})
}

func (h *httpHandler) handleTaskList(c *gin.Context) {
	userID, ok := callerUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	rows, err := h.taskService.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("task list failed", zap.String("user_id", userID.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Task list failed"})
		return
	}

	c.JSON(http.StatusOK, rows)
}

type taskCreatePayload struct {
	Description string `json:"description"`
	Date        string `json:"date"`
}

func (h *httpHandler) handleTaskCreate(c *gin.Context) {
	userID, ok := callerUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	var request taskCreatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing description or date"})
		return
	}
	if strings.TrimSpace(request.Description) == "" || strings.TrimSpace(request.Date) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing description or date"})
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), userID, request.Description, request.Date)
	if err != nil {
		if errors.Is(err, tasks.ErrMissingDescription) || errors.Is(err, tasks.ErrMissingDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing description or date"})
			return
		}
		h.logger.Error("task create failed", zap.String("user_id", userID.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Task create failed"})
		return
	}

	c.JSON(http.StatusCreated, []tasks.Task{task})
}

type taskDeletePayload struct {
	ID string `json:"id"`
}

func (h *httpHandler) handleTaskDelete(c *gin.Context) {
	userID, ok := callerUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	var request taskDeletePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing task ID"})
		return
	}

	taskID, err := tasks.NewTaskID(request.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing task ID"})
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), userID, taskID); err != nil {
		h.logger.Error("task delete failed",
			zap.String("user_id", userID.String()),
			zap.String("task_id", taskID.String()),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Task delete failed"})
		return
	}

	// Zero matched rows is still a success: delete is idempotent.
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

type predictPayload struct {
	Features        []float64 `json:"features"`
	TaskDescription string    `json:"task_description"`
}

func (h *httpHandler) handlePredict(c *gin.Context) {
	var request predictPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing input for prediction"})
		return
	}

	if h.predictor != nil && request.Features != nil {
		label, err := h.predictor.Predict(request.Features)
		if err != nil {
			if errors.Is(err, predict.ErrFeatureLength) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			h.logger.Error("model prediction failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
			return
		}
		h.recordPrediction("model")
		c.JSON(http.StatusOK, gin.H{"prediction": label})
		return
	}

	if strings.TrimSpace(request.TaskDescription) != "" {
		h.recordPrediction("heuristic")
		c.JSON(http.StatusOK, gin.H{"predicted_category": predict.Categorize(request.TaskDescription)})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "Missing input for prediction"})
}

func (h *httpHandler) recordPrediction(source string) {
	if h.collector != nil {
		h.collector.RecordPrediction(source)
	}
}

func identityFromContext(c *gin.Context) (auth.FirebaseClaims, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.FirebaseClaims{}, false
	}
	claims, ok := value.(auth.FirebaseClaims)
	return claims, ok
}

func callerUserID(c *gin.Context) (tasks.UserID, bool) {
	userID, err := tasks.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		return "", false
	}
	return userID, true
}
