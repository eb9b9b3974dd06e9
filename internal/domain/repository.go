package domain

import "context"

// JobRepository persists generation jobs. It is the read/write contract the
// core uses against the relational store.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob, req *GenerationRequest) error
	UpdateStatus(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	ClaimActive(ctx context.Context, limit int) ([]*GenerationJob, error)
	SetResultKey(ctx context.Context, jobID, key string) error
	Release(ctx context.Context, jobID string) error
}
