package meals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/litodertechie/caloriesnap/internal/images"
	"github.com/litodertechie/caloriesnap/internal/vision"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingBlobs     = errors.New("blob store is required")
	errMissingEstimator = errors.New("estimator is required")
	errMissingPhoto     = errors.New("photo is required")
	noOpLogger          = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the cause so
// handlers can surface machine-readable failure details.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "meals.service.new"
	opIngest     = "meals.ingest"
	opList       = "meals.list"
	opGet        = "meals.get"
	opUpdate     = "meals.update"
	opDelete     = "meals.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new meals.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig carries the collaborators for a meal Service.
type ServiceConfig struct {
	Database   *gorm.DB
	Blobs      *images.Store
	Estimator  vision.Estimator
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the ingestion pipeline and meal record operations.
type Service struct {
	db         *gorm.DB
	blobs      *images.Store
	estimator  vision.Estimator
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates collaborators and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Blobs == nil {
		return nil, newServiceError(opServiceNew, "missing_blob_store", errMissingBlobs)
	}
	if cfg.Estimator == nil {
		return nil, newServiceError(opServiceNew, "missing_estimator", errMissingEstimator)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		blobs:      cfg.Blobs,
		estimator:  cfg.Estimator,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// IngestRequest is one photo upload. Timestamp and Hour are the raw
// client-supplied form values; malformed values fall through the
// capture priority chain silently.
type IngestRequest struct {
	Photo     []byte
	Filename  string
	Timestamp string
	Hour      string
}

// Ingest runs the upload transaction: normalize the photo, resolve
// its capture time, persist the blob, estimate nutrition, classify
// the meal, and insert the record. The blob write strictly precedes
// the record write so a crash in between leaves an orphaned blob
// rather than a record pointing at a missing image.
func (s *Service) Ingest(ctx context.Context, request IngestRequest) (Meal, error) {
	if len(request.Photo) == 0 {
		return Meal{}, newServiceError(opIngest, "missing_photo", errMissingPhoto)
	}

	normalized, err := images.Normalize(request.Photo, request.Filename)
	if err != nil {
		s.logError(opIngest, "normalize_failed", err, zap.String("filename", request.Filename))
		return Meal{}, newServiceError(opIngest, "normalize_failed", err)
	}

	resolved := resolveCapture(request.Timestamp, request.Hour, request.Photo, s.clock)

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opIngest, "id_generation_failed", err)
		return Meal{}, newServiceError(opIngest, "id_generation_failed", err)
	}

	photoPath := id + ".jpg"
	if err := s.blobs.Save(photoPath, normalized); err != nil {
		s.logError(opIngest, "blob_write_failed", err, zap.String("photo_path", photoPath))
		return Meal{}, newServiceError(opIngest, "blob_write_failed", err)
	}

	estimate, err := s.estimator.Estimate(ctx, normalized)
	if err != nil {
		// Estimator failure is recovered locally, never surfaced.
		s.logger.Warn("nutrition estimate failed, using fallback",
			zap.String("meal_id", id), zap.Error(err))
		estimate = vision.FallbackEstimate()
	}

	// Stored in UTC so lexical order on the TEXT column matches
	// instant order; date and hour were derived from the offset-local
	// value during resolution.
	var photoTakenAt *string
	if resolved.takenAt != nil {
		formatted := resolved.takenAt.UTC().Format(time.RFC3339)
		photoTakenAt = &formatted
	}

	meal := Meal{
		ID:           id,
		Date:         resolved.date,
		MealType:     ClassifyHour(resolved.hour),
		PhotoPath:    photoPath,
		FoodName:     estimate.FoodName,
		Calories:     estimate.Calories,
		Protein:      estimate.Protein,
		Carbs:        estimate.Carbs,
		Fat:          estimate.Fat,
		Notes:        "",
		PhotoTakenAt: photoTakenAt,
		CreatedAt:    s.clock().UTC().Format(time.RFC3339),
	}

	if err := s.db.WithContext(ctx).Create(&meal).Error; err != nil {
		s.logError(opIngest, "record_insert_failed", err, zap.String("meal_id", id))
		return Meal{}, newServiceError(opIngest, "record_insert_failed", err)
	}

	s.logger.Info("meal ingested",
		zap.String("meal_id", id),
		zap.String("date", meal.Date),
		zap.String("meal_type", string(meal.MealType)))

	return meal, nil
}

// ListByDate returns the meals logged for one calendar date, ordered
// by capture time ascending with unresolved captures last in creation
// order. SQLite sorts NULLs first, hence the explicit IS NULL key.
func (s *Service) ListByDate(ctx context.Context, date string) ([]Meal, error) {
	var rows []Meal
	err := s.db.WithContext(ctx).
		Where("date = ?", date).
		Order("photo_taken_at IS NULL, photo_taken_at ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("date", date))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return rows, nil
}

// Get fetches one meal by id.
func (s *Service) Get(ctx context.Context, id string) (Meal, error) {
	var meal Meal
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&meal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Meal{}, ErrMealNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("meal_id", id))
		return Meal{}, newServiceError(opGet, "query_failed", err)
	}
	return meal, nil
}

// updatableColumns are the fields a partial update may touch. The id
// and created_at stay immutable; anything else in the payload is
// ignored rather than rejected.
var updatableColumns = map[string]struct{}{
	"date":           {},
	"meal_type":      {},
	"food_name":      {},
	"calories":       {},
	"protein":        {},
	"carbs":          {},
	"fat":            {},
	"notes":          {},
	"photo_taken_at": {},
}

// Update applies a field-by-field partial update and returns the
// resulting row. An empty payload returns the row unchanged.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) (Meal, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Meal{}, err
	}

	updates := make(map[string]any, len(fields))
	for key, value := range fields {
		if _, ok := updatableColumns[key]; ok {
			updates[key] = value
		}
	}
	if len(updates) == 0 {
		return current, nil
	}

	err = s.db.WithContext(ctx).Model(&Meal{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		s.logError(opUpdate, "update_failed", err, zap.String("meal_id", id))
		return Meal{}, newServiceError(opUpdate, "update_failed", err)
	}

	return s.Get(ctx, id)
}

// Delete removes a meal and its blob. The blob goes first: a failure
// afterward strands a record with a dangling photo reference, which
// matches the documented upstream ordering rather than fixing it.
func (s *Service) Delete(ctx context.Context, id string) error {
	meal, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.blobs.Remove(meal.PhotoPath); err != nil {
		s.logError(opDelete, "blob_delete_failed", err,
			zap.String("meal_id", id), zap.String("photo_path", meal.PhotoPath))
		return newServiceError(opDelete, "blob_delete_failed", err)
	}

	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Meal{}).Error; err != nil {
		s.logError(opDelete, "record_delete_failed", err, zap.String("meal_id", id))
		return newServiceError(opDelete, "record_delete_failed", err)
	}

	s.logger.Info("meal deleted", zap.String("meal_id", id))
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("meals service error", attrs...)
}
