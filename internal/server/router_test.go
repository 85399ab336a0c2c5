package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/litodertechie/caloriesnap/internal/images"
	"github.com/litodertechie/caloriesnap/internal/meals"
	"github.com/litodertechie/caloriesnap/internal/vision"
	"gorm.io/gorm"
)

type fixedEstimator struct {
	estimate vision.Estimate
}

func (e *fixedEstimator) Estimate(ctx context.Context, imageJPEG []byte) (vision.Estimate, error) {
	return e.estimate, nil
}

func newTestHandler(t *testing.T) (http.Handler, *images.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("unexpected database error: %v", err)
	}
	if err := db.AutoMigrate(&meals.Meal{}); err != nil {
		t.Fatalf("unexpected migrate error: %v", err)
	}

	blobs, err := images.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected blob store error: %v", err)
	}

	mealsService, err := meals.NewService(meals.ServiceConfig{
		Database: db,
		Blobs:    blobs,
		Estimator: &fixedEstimator{estimate: vision.Estimate{
			FoodName: "Veggie burrito",
			Calories: 540,
			Protein:  18,
			Carbs:    70,
			Fat:      19,
		}},
		Clock: func() time.Time { return time.Date(2024, 4, 2, 12, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		MealsService: mealsService,
		Blobs:        blobs,
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	return handler, blobs
}

func photoUploadRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()

	var photo bytes.Buffer
	if err := png.Encode(&photo, image.NewRGBA(image.Rect(0, 0, 12, 12))); err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("photo", "meal.png")
	if err != nil {
		t.Fatalf("unexpected form error: %v", err)
	}
	if _, err := part.Write(photo.Bytes()); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("unexpected field error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/meals", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func createMeal(t *testing.T, handler http.Handler, fields map[string]string) meals.Meal {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, photoUploadRequest(t, fields))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected created meal, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var meal meals.Meal
	if err := json.Unmarshal(recorder.Body.Bytes(), &meal); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	return meal
}

func TestCreateMealWithoutPhotoReturnsBadRequest(t *testing.T) {
	handler, _ := newTestHandler(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("timestamp", "2024-04-02T08:00:00Z"); err != nil {
		t.Fatalf("unexpected field error: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/meals", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "no_photo") {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestCreateMealReturnsPersistedRecord(t *testing.T) {
	handler, blobs := newTestHandler(t)

	meal := createMeal(t, handler, map[string]string{"timestamp": "2024-04-02T08:15:00Z"})
	if meal.FoodName != "Veggie burrito" || meal.Calories != 540 {
		t.Fatalf("unexpected meal: %+v", meal)
	}
	if meal.MealType != meals.MealTypeBreakfast {
		t.Fatalf("hour 8 must classify as Breakfast, got %s", meal.MealType)
	}
	if meal.PhotoPath == "" {
		t.Fatal("expected a photo path")
	}
	if _, err := blobs.Read(meal.PhotoPath); err != nil {
		t.Fatalf("expected the blob to be readable: %v", err)
	}
}

func TestGetMealNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/meals/unknown", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
}

func TestListMealsForDate(t *testing.T) {
	handler, _ := newTestHandler(t)
	createMeal(t, handler, map[string]string{"timestamp": "2024-04-02T08:15:00Z"})
	createMeal(t, handler, map[string]string{"timestamp": "2024-04-02T12:45:00Z"})
	createMeal(t, handler, map[string]string{"timestamp": "2024-04-03T09:00:00Z"})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/meals?date=2024-04-02", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	var rows []meals.Meal
	if err := json.Unmarshal(recorder.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 meals for the date, got %d", len(rows))
	}
	if rows[0].PhotoTakenAt == nil || rows[1].PhotoTakenAt == nil ||
		*rows[0].PhotoTakenAt > *rows[1].PhotoTakenAt {
		t.Fatalf("meals must order by capture time ascending: %+v", rows)
	}
}

func TestPatchMealUpdatesFields(t *testing.T) {
	handler, _ := newTestHandler(t)
	meal := createMeal(t, handler, nil)

	body := `{"notes":"leftovers","meal_type":"Snack","id":"hijacked"}`
	request := httptest.NewRequest(http.MethodPatch, "/meals/"+meal.ID, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var updated meals.Meal
	if err := json.Unmarshal(recorder.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if updated.Notes != "leftovers" || updated.MealType != meals.MealTypeSnack {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.ID != meal.ID {
		t.Fatalf("id must be immutable, got %s", updated.ID)
	}
}

func TestPatchMealWithEmptyObjectIsIdempotent(t *testing.T) {
	handler, _ := newTestHandler(t)
	meal := createMeal(t, handler, nil)

	request := httptest.NewRequest(http.MethodPatch, "/meals/"+meal.ID, strings.NewReader(`{}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	var updated meals.Meal
	if err := json.Unmarshal(recorder.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if updated.Notes != meal.Notes || updated.Calories != meal.Calories || updated.MealType != meal.MealType {
		t.Fatalf("empty patch changed the record: %+v", updated)
	}
}

func TestPatchMealNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	request := httptest.NewRequest(http.MethodPatch, "/meals/unknown", strings.NewReader(`{"notes":"x"}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
}

func TestDeleteMealRemovesRecordAndBlob(t *testing.T) {
	handler, blobs := newTestHandler(t)
	meal := createMeal(t, handler, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/meals/"+meal.ID, nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"success":true`) {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/meals/"+meal.ID, nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found after delete, got %d", recorder.Code)
	}
	if _, err := blobs.Read(meal.PhotoPath); err == nil {
		t.Fatal("expected the blob to be gone after delete")
	}
}

func TestDeleteMealNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/meals/unknown", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
}

func TestGetImageServesStoredBlob(t *testing.T) {
	handler, _ := newTestHandler(t)
	meal := createMeal(t, handler, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/images/"+meal.PhotoPath, nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", got)
	}
	if got := recorder.Header().Get("Cache-Control"); got != imageCacheControl {
		t.Fatalf("expected immutable cache header, got %q", got)
	}
	if recorder.Body.Len() == 0 {
		t.Fatal("expected image bytes in the response")
	}
}

func TestGetImageRejectsEscapingPath(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/images/nested/..%2F..%2Fsecret.jpg", nil)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestGetImageNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/images/absent.jpg", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
}
