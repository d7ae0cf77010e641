package services

import (
	"context"
	"time"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/repository"
)

// ReplacementService maps original images to their edited versions
type ReplacementService struct {
	repo repository.ReplacementRepo
}

// NewReplacementService creates a new ReplacementService
func NewReplacementService(repo repository.ReplacementRepo) *ReplacementService {
	return &ReplacementService{repo: repo}
}

// RecordReplacement stores originalID -> editedID and reports whether the
// mapping was created, changed or already present.
func (s *ReplacementService) RecordReplacement(ctx context.Context, originalID, editedID int64, at time.Time) (models.ReplacementOutcome, error) {
	return s.repo.Record(ctx, originalID, editedID, at)
}

// Resolve returns the edited image for originalID, or nil
func (s *ReplacementService) Resolve(ctx context.Context, originalID int64) (*int64, error) {
	return s.repo.Resolve(ctx, originalID)
}

// ResolveMany resolves a batch of originals in one query
func (s *ReplacementService) ResolveMany(ctx context.Context, originalIDs []int64) (map[int64]int64, error) {
	return s.repo.ResolveMany(ctx, originalIDs)
}
