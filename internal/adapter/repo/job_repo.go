package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clipstudio/internal/domain"
	"clipstudio/internal/infra"
	"clipstudio/internal/sqlinline"
)

const defaultLease = 3 * time.Minute

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql   infra.SQLExecutor
	lease time.Duration
	now   func() time.Time
}

// NewJobRepository creates a new job repository backed by PostgreSQL. lease
// bounds how long a claimed job stays invisible to other workers.
func NewJobRepository(sql infra.SQLExecutor, lease time.Duration) *JobRepositoryPG {
	if lease <= 0 {
		lease = defaultLease
	}
	return &JobRepositoryPG{sql: sql, lease: lease, now: time.Now}
}

// EnsureSchema creates the generation_jobs table when missing.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QEnsureGenerationJobs)
	return err
}

// Create inserts a new job record together with the request it was built from.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob, req *domain.GenerationRequest) error {
	payload := []byte("{}")
	if req != nil {
		raw, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGenerationJob,
		job.ID,
		job.ProviderID,
		job.ModelID,
		string(job.ClipType),
		string(job.Status),
		job.Progress,
		payload,
		createdAt,
	)
	return err
}

// UpdateStatus persists the job's status, progress, result and error. Rows
// already in a terminal state are never modified; updating one returns
// domain.ErrNotFound.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, job *domain.GenerationJob) error {
	var resultURL, errorKind, errorDetail *string
	if job.Result != nil && job.Result.AssetURL != "" {
		resultURL = &job.Result.AssetURL
	}
	if job.Error != nil {
		kind := job.Error.KindCode()
		errorKind = &kind
		detail := job.Error.Detail
		errorDetail = &detail
	}
	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateGenerationJobStatus,
		job.ID,
		string(job.Status),
		job.Progress,
		resultURL,
		errorKind,
		errorDetail,
		updatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not active: %w", job.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJobByID, jobID)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimActive leases up to limit non-terminal jobs, oldest first.
func (r *JobRepositoryPG) ClaimActive(ctx context.Context, limit int) ([]*domain.GenerationJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QClaimActiveGenerationJobs, limit, int(r.lease.Seconds()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetResultKey records where a completed job's asset was archived.
func (r *JobRepositoryPG) SetResultKey(ctx context.Context, jobID, key string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QSetGenerationJobResultKey, jobID, key, r.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not completed: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

// Release drops the lease so another worker may pick the job up at once.
func (r *JobRepositoryPG) Release(ctx context.Context, jobID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QReleaseGenerationJobLease, jobID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.GenerationJob, error) {
	var (
		job                               domain.GenerationJob
		clipType, status                  string
		resultURL, resultKey              string
		errorKind, errorDetail            string
	)
	if err := row.Scan(
		&job.ID,
		&job.ProviderID,
		&job.ModelID,
		&clipType,
		&status,
		&job.Progress,
		&resultURL,
		&resultKey,
		&errorKind,
		&errorDetail,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.ClipType = domain.ClipType(clipType)
	job.Status = domain.JobStatus(status)
	if resultURL != "" || resultKey != "" {
		job.Result = &domain.JobResult{AssetURL: resultURL, StorageKey: resultKey}
	}
	if errorKind != "" || errorDetail != "" {
		job.Error = domain.NewJobError(domain.KindFromCode(errorKind), errorDetail)
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
