package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mkline/granary/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessedFileRepository records terminal artifact outcomes and answers
// dedup lookups across process restarts.
type ProcessedFileRepository struct {
	db *gorm.DB
}

// NewProcessedFileRepository creates a new ProcessedFileRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProcessedFileRepository: repository instance bound to db.
func NewProcessedFileRepository(db *gorm.DB) *ProcessedFileRepository {
	return &ProcessedFileRepository{db: db}
}

// Record upserts the terminal outcome for an artifact identity. A
// re-delivered artifact with the same (name, mod_time) updates the existing
// row instead of inserting a duplicate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - pf: processed-file row to persist; ID is assigned if empty.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ProcessedFileRepository) Record(ctx context.Context, pf *domain.ProcessedFile) error {
	if pf.ID == "" {
		pf.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "mod_time"}},
		UpdateAll: true,
	}).Create(pf).Error
}

// Get retrieves the terminal outcome for an artifact identity, if any.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: artifact base name.
//   - modTime: artifact modification time (unix seconds).
// Returns:
//   - *domain.ProcessedFile: the recorded outcome or nil if none exists.
//   - error: non-nil on query failure.
func (r *ProcessedFileRepository) Get(ctx context.Context, name string, modTime int64) (*domain.ProcessedFile, error) {
	var pf domain.ProcessedFile
	err := r.db.WithContext(ctx).
		Where("name = ? AND mod_time = ?", name, modTime).
		First(&pf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

// GetByArtifact retrieves the outcome recorded for a converted artifact path.
// Used by startup recovery to decide whether a lingering artifact still
// needs its load retried.
func (r *ProcessedFileRepository) GetByArtifact(ctx context.Context, artifact string) (*domain.ProcessedFile, error) {
	var pf domain.ProcessedFile
	err := r.db.WithContext(ctx).
		Where("artifact = ? AND status = ?", artifact, domain.FileStatusLoaded).
		First(&pf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

// List returns the most recent outcomes, newest first.
func (r *ProcessedFileRepository) List(ctx context.Context, limit int) ([]domain.ProcessedFile, error) {
	var rows []domain.ProcessedFile
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
