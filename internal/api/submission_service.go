package api

import (
	"context"

	"feedbackpipe/internal/store"
)

// SubmissionReader abstracts the store queries the API needs.
type SubmissionReader interface {
	List(ctx context.Context, limit int, statuses ...store.Status) ([]*store.Submission, error)
	Stats(ctx context.Context) (map[store.Status]int, error)
	GetBySession(ctx context.Context, sessionID string) (*store.Submission, error)
}

// SubmissionService exposes read-only submission queries returning DTOs.
type SubmissionService struct {
	store SubmissionReader
}

// NewSubmissionService wraps reader. A nil reader yields a nil service.
func NewSubmissionService(reader SubmissionReader) *SubmissionService {
	if reader == nil {
		return nil
	}
	return &SubmissionService{store: reader}
}

// List returns submissions filtered by status, newest first.
func (s *SubmissionService) List(ctx context.Context, limit int, statuses ...store.Status) ([]Submission, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	subs, err := s.store.List(ctx, limit, statuses...)
	if err != nil {
		return nil, err
	}
	return FromSubmissions(subs), nil
}

// Describe returns one submission or nil when missing.
func (s *SubmissionService) Describe(ctx context.Context, sessionID string) (*Submission, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	sub, err := s.store.GetBySession(ctx, sessionID)
	if err != nil || sub == nil {
		return nil, err
	}
	dto := FromSubmission(sub)
	return &dto, nil
}

// Counts returns submission counts keyed by status.
func (s *SubmissionService) Counts(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return countsByStatus(nil), nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return countsByStatus(stats), nil
}
