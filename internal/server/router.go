package server

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/litodertechie/caloriesnap/internal/images"
	"github.com/litodertechie/caloriesnap/internal/meals"
	"go.uber.org/zap"
)

const imageCacheControl = "public, max-age=31536000, immutable"

var (
	errMissingMealsService = errors.New("meals service dependency required")
	errMissingBlobStore    = errors.New("blob store dependency required")
)

// Dependencies wires the HTTP handler to its collaborators.
type Dependencies struct {
	MealsService *meals.Service
	Blobs        *images.Store
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router serving the meals and images API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.MealsService == nil {
		return nil, errMissingMealsService
	}
	if deps.Blobs == nil {
		return nil, errMissingBlobStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		mealsService: deps.MealsService,
		blobs:        deps.Blobs,
		logger:       logger,
	}

	router.GET("/meals", handler.handleListMeals)
	router.POST("/meals", handler.handleCreateMeal)
	router.GET("/meals/:id", handler.handleGetMeal)
	router.PATCH("/meals/:id", handler.handleUpdateMeal)
	router.DELETE("/meals/:id", handler.handleDeleteMeal)
	router.GET("/images/*path", handler.handleGetImage)

	return router, nil
}

type httpHandler struct {
	mealsService *meals.Service
	blobs        *images.Store
	logger       *zap.Logger
}

func (h *httpHandler) handleListMeals(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	rows, err := h.mealsService.ListByDate(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("failed to list meals", zap.String("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *httpHandler) handleCreateMeal(c *gin.Context) {
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_photo"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_photo"})
		return
	}
	defer file.Close()

	photo, err := io.ReadAll(file)
	if err != nil || len(photo) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_photo"})
		return
	}

	meal, err := h.mealsService.Ingest(c.Request.Context(), meals.IngestRequest{
		Photo:     photo,
		Filename:  fileHeader.Filename,
		Timestamp: c.PostForm("timestamp"),
		Hour:      c.PostForm("hour"),
	})
	if err != nil {
		h.logger.Error("failed to process meal upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest_failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, meal)
}

func (h *httpHandler) handleGetMeal(c *gin.Context) {
	meal, err := h.mealsService.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, meals.ErrMealNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "meal_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch meal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_failed"})
		return
	}
	c.JSON(http.StatusOK, meal)
}

func (h *httpHandler) handleUpdateMeal(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	meal, err := h.mealsService.Update(c.Request.Context(), c.Param("id"), fields)
	if errors.Is(err, meals.ErrMealNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "meal_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to update meal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meal)
}

func (h *httpHandler) handleDeleteMeal(c *gin.Context) {
	err := h.mealsService.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, meals.ErrMealNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "meal_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to delete meal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleGetImage(c *gin.Context) {
	name := c.Param("path")

	data, err := h.blobs.Read(name)
	if errors.Is(err, images.ErrPathEscapesRoot) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_path"})
		return
	}
	if errors.Is(err, fs.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to serve image", zap.String("path", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "serve_failed"})
		return
	}

	c.Header("Cache-Control", imageCacheControl)
	c.Data(http.StatusOK, images.ContentTypeForName(name), data)
}
