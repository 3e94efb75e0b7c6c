package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/applyforge/applyforge/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Postings ---

func (s *PostgresStore) UpsertPosting(ctx context.Context, posting *models.Posting) (*models.Posting, error) {
	var out models.Posting
	err := s.pool.QueryRow(ctx,
		`INSERT INTO postings (id, ats_provider, ats_job_id, company, title, url, location, is_remote,
		                       salary_range, employment_type, description, posted_at, last_seen_at, is_active,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), TRUE, NOW(), NOW())
		 ON CONFLICT (ats_provider, ats_job_id) DO UPDATE
		 SET last_seen_at = NOW(), is_active = TRUE, updated_at = NOW()
		 RETURNING id, ats_provider, ats_job_id, company, title, url, location, is_remote,
		           salary_range, employment_type, description, posted_at, last_seen_at, is_active,
		           created_at, updated_at`,
		posting.ID, posting.ATSProvider, posting.ATSJobID, posting.Company, posting.Title,
		posting.URL, posting.Location, posting.IsRemote, posting.SalaryRange,
		posting.EmploymentType, posting.Description, posting.PostedAt,
	).Scan(&out.ID, &out.ATSProvider, &out.ATSJobID, &out.Company, &out.Title, &out.URL,
		&out.Location, &out.IsRemote, &out.SalaryRange, &out.EmploymentType, &out.Description,
		&out.PostedAt, &out.LastSeenAt, &out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert posting: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) GetPosting(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	var p models.Posting
	err := s.pool.QueryRow(ctx,
		`SELECT id, ats_provider, ats_job_id, company, title, url, location, is_remote,
		        salary_range, employment_type, description, posted_at, last_seen_at, is_active,
		        created_at, updated_at
		 FROM postings WHERE id = $1`, id,
	).Scan(&p.ID, &p.ATSProvider, &p.ATSJobID, &p.Company, &p.Title, &p.URL, &p.Location,
		&p.IsRemote, &p.SalaryRange, &p.EmploymentType, &p.Description, &p.PostedAt,
		&p.LastSeenAt, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get posting: %w", err)
	}
	return &p, nil
}

// --- Applications ---

const applicationColumns = `id, user_id, posting, queue_status, retry_count, pause_reason, last_error,
	match_score, queue_batch_id, created_at, queued_at, started_at, completed_at, updated_at`

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	err := row.Scan(&a.ID, &a.UserID, &a.Posting, &a.QueueStatus, &a.RetryCount, &a.PauseReason,
		&a.LastError, &a.MatchScore, &a.QueueBatchID, &a.CreatedAt, &a.QueuedAt, &a.StartedAt,
		&a.CompletedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateApplication(ctx context.Context, app *models.Application) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (id, user_id, posting, queue_status, retry_count, match_score,
		                           created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.UserID, app.Posting, app.QueueStatus, app.RetryCount, app.MatchScore,
		app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	app, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) FetchPendingApplications(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications
		 WHERE user_id = $1 AND queue_status = $2
		 ORDER BY created_at ASC
		 LIMIT $3`, userID, models.QueueStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (s *PostgresStore) ListApplicationsByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications
		 WHERE queue_batch_id = $1
		 ORDER BY created_at ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list applications by batch: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (s *PostgresStore) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status string, opts ...ApplicationUpdateOption) error {
	var params applicationUpdateParams
	for _, opt := range opts {
		opt(&params)
	}

	sets := []string{"queue_status = $2", "updated_at = NOW()"}
	args := []any{id, status}

	switch status {
	case models.QueueStatusQueued:
		sets = append(sets, "queued_at = NOW()")
	case models.QueueStatusProcessing:
		sets = append(sets, "started_at = NOW()")
	case models.QueueStatusCompleted, models.QueueStatusFailed:
		sets = append(sets, "completed_at = NOW()")
	}

	if params.LastError != nil {
		args = append(args, *params.LastError)
		sets = append(sets, fmt.Sprintf("last_error = $%d", len(args)))
	}
	if params.PauseReason != nil {
		args = append(args, *params.PauseReason)
		sets = append(sets, fmt.Sprintf("pause_reason = $%d", len(args)))
	}
	if params.ClearPause {
		sets = append(sets, "pause_reason = NULL")
	}
	if params.RetryCount != nil {
		args = append(args, *params.RetryCount)
		sets = append(sets, fmt.Sprintf("retry_count = $%d", len(args)))
	}
	if params.QueueBatchID != nil {
		args = append(args, *params.QueueBatchID)
		sets = append(sets, fmt.Sprintf("queue_batch_id = $%d", len(args)))
	}
	if params.StartedAt != nil {
		args = append(args, *params.StartedAt)
		sets = append(sets, fmt.Sprintf("started_at = $%d", len(args)))
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RequeueOrphaned(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications
		 SET queue_status = $1,
		     pause_reason = NULL,
		     last_error = 'requeued after unclean shutdown',
		     updated_at = NOW()
		 WHERE queue_status IN ($2, $3, $4)`,
		models.QueueStatusPending,
		models.QueueStatusProcessing, models.QueueStatusQueued, models.QueueStatusPaused)
	if err != nil {
		return 0, fmt.Errorf("requeue orphaned applications: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE campaigns
		 SET status = $1, current_job_id = NULL, pause_reason = NULL,
		     finished_at = NOW(), updated_at = NOW()
		 WHERE status IN ($2, $3)`,
		models.CampaignStatusStopped,
		models.CampaignStatusProcessing, models.CampaignStatusPaused)
	if err != nil {
		return 0, fmt.Errorf("close orphaned campaigns: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Campaigns ---

func (s *PostgresStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, user_id, status, dry_run, batch_limit, total_count,
		                        completed_count, failed_count, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		campaign.ID, campaign.UserID, campaign.Status, campaign.DryRun, campaign.Limit,
		campaign.TotalCount, campaign.CompletedCount, campaign.FailedCount, campaign.StartedAt,
		campaign.CreatedAt, campaign.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns
		 SET status = $2, total_count = $3, completed_count = $4, failed_count = $5,
		     current_job_id = $6, pause_reason = $7, finished_at = $8, updated_at = NOW()
		 WHERE id = $1`,
		campaign.ID, campaign.Status, campaign.TotalCount, campaign.CompletedCount,
		campaign.FailedCount, campaign.CurrentJobID, campaign.PauseReason, campaign.FinishedAt)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var c models.Campaign
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, status, dry_run, batch_limit, total_count, completed_count,
		        failed_count, current_job_id, pause_reason, started_at, finished_at,
		        created_at, updated_at
		 FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.Status, &c.DryRun, &c.Limit, &c.TotalCount, &c.CompletedCount,
		&c.FailedCount, &c.CurrentJobID, &c.PauseReason, &c.StartedAt, &c.FinishedAt,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

// --- Profiles ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, full_name, email, resume_text, skills, preferences, created_at, updated_at
		 FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.FullName, &p.Email, &p.ResumeText, &p.Skills, &p.Preferences,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, full_name, email, resume_text, skills, preferences,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET full_name = EXCLUDED.full_name, email = EXCLUDED.email,
		     resume_text = EXCLUDED.resume_text, skills = EXCLUDED.skills,
		     preferences = EXCLUDED.preferences, updated_at = NOW()`,
		profile.UserID, profile.FullName, profile.Email, profile.ResumeText,
		profile.Skills, profile.Preferences)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
