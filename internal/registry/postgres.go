package registry

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/relayworks/threadrelay/internal/model"
	"github.com/relayworks/threadrelay/pkg/logger"
	"github.com/relayworks/threadrelay/pkg/metrics"
)

// PostgresRegistry is the storage-backed TenantRegistry.
type PostgresRegistry struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresRegistry creates a registry backed by a pgx pool.
func NewPostgresRegistry(pool *pgxpool.Pool, log *logger.Logger) *PostgresRegistry {
	return &PostgresRegistry{pool: pool, logger: log}
}

// CreateProject upserts the project row and its initial channel link in
// a single transaction. No partial state is observable on failure.
func (r *PostgresRegistry) CreateProject(ctx context.Context, p model.Project, channelID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("create").Inc()
		return &WriteError{Entity: "project " + p.ProjectID, Err: err}
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO projects (project_id, api_token, api_url, owner_email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (project_id) DO UPDATE SET
			api_token   = EXCLUDED.api_token,
			api_url     = EXCLUDED.api_url,
			owner_email = EXCLUDED.owner_email,
			status      = EXCLUDED.status,
			updated_at  = EXCLUDED.updated_at`,
		p.ProjectID, p.APIToken, p.APIURL, p.OwnerEmail, p.Status, now)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("create").Inc()
		return &WriteError{Entity: "project " + p.ProjectID, Err: err}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO project_channels (channel_id, project_id, linked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, project_id) DO NOTHING`,
		channelID, p.ProjectID, now)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("create").Inc()
		return &WriteError{Entity: "project " + p.ProjectID, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("create").Inc()
		return &WriteError{Entity: "project " + p.ProjectID, Err: err}
	}
	return nil
}

// ListProjects uses keyset pagination on project_id, so repeated full
// enumeration with no concurrent writes yields each project exactly once.
func (r *PostgresRegistry) ListProjects(ctx context.Context, limit int, cursor string) ([]model.Project, string, error) {
	if limit <= 0 {
		limit = 25
	}

	rows, err := r.pool.Query(ctx, `
		SELECT project_id, api_token, api_url, owner_email, status, created_at, updated_at
		FROM projects
		WHERE project_id > $1
		ORDER BY project_id
		LIMIT $2`,
		cursor, limit)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("list").Inc()
		return nil, "", &ReadError{Entity: "projects", Err: err}
	}
	defer rows.Close()

	projects, err := scanProjects(rows)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("list").Inc()
		return nil, "", &ReadError{Entity: "projects", Err: err}
	}

	next := ""
	if len(projects) == limit {
		next = projects[len(projects)-1].ProjectID
	}
	return projects, next, nil
}

// ChannelsForProject returns every link for a project, empty when none.
func (r *PostgresRegistry) ChannelsForProject(ctx context.Context, projectID string) ([]model.ChannelLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT channel_id, project_id
		FROM project_channels
		WHERE project_id = $1
		ORDER BY linked_at DESC, channel_id`,
		projectID)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("channels_for_project").Inc()
		return nil, &ReadError{Entity: "project " + projectID, Err: err}
	}
	defer rows.Close()

	links := make([]model.ChannelLink, 0)
	for rows.Next() {
		var l model.ChannelLink
		if err := rows.Scan(&l.ChannelID, &l.ProjectID); err != nil {
			metrics.RegistryErrorsTotal.WithLabelValues("channels_for_project").Inc()
			return nil, &ReadError{Entity: "project " + projectID, Err: err}
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("channels_for_project").Inc()
		return nil, &ReadError{Entity: "project " + projectID, Err: err}
	}
	return links, nil
}

// ProjectsForChannel is the hot path on every inbound message: fetch the
// links, then batch-fetch the referenced projects. Dangling links are
// skipped; a partially fulfilled fetch logs and returns the subset found.
func (r *PostgresRegistry) ProjectsForChannel(ctx context.Context, channelID string) ([]model.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT project_id
		FROM project_channels
		WHERE channel_id = $1
		ORDER BY linked_at DESC, project_id`,
		channelID)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("projects_for_channel").Inc()
		return nil, &ReadError{Entity: "channel " + channelID, Err: err}
	}

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			metrics.RegistryErrorsTotal.WithLabelValues("projects_for_channel").Inc()
			return nil, &ReadError{Entity: "channel " + channelID, Err: err}
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("projects_for_channel").Inc()
		return nil, &ReadError{Entity: "channel " + channelID, Err: err}
	}

	if len(ids) == 0 {
		return []model.Project{}, nil
	}

	prows, err := r.pool.Query(ctx, `
		SELECT project_id, api_token, api_url, owner_email, status, created_at, updated_at
		FROM projects
		WHERE project_id = ANY($1)`,
		ids)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("projects_for_channel").Inc()
		return nil, &ReadError{Entity: "channel " + channelID, Err: err}
	}
	defer prows.Close()

	fetched, err := scanProjects(prows)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("projects_for_channel").Inc()
		return nil, &ReadError{Entity: "channel " + channelID, Err: err}
	}

	byID := make(map[string]model.Project, len(fetched))
	for _, p := range fetched {
		byID[p.ProjectID] = p
	}

	// Preserve link order; links to missing projects fall out here.
	projects := make([]model.Project, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			projects = append(projects, p)
		}
	}

	if len(projects) < len(ids) {
		r.logger.Warn("channel has links to missing projects",
			zap.String("channel_id", channelID),
			zap.Int("links", len(ids)),
			zap.Int("resolved", len(projects)),
		)
	}
	return projects, nil
}

// DeleteProject removes the links first, then the project row. Both
// statements are idempotent so a failed call can be retried as-is.
func (r *PostgresRegistry) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM project_channels WHERE project_id = $1`, projectID); err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("delete").Inc()
		return &DeleteError{Entity: "project " + projectID, Err: err}
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE project_id = $1`, projectID); err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("delete").Inc()
		return &DeleteError{Entity: "project " + projectID, Err: err}
	}
	return nil
}

// LinkChannels adds links in one batch; existing pairs are no-ops.
func (r *PostgresRegistry) LinkChannels(ctx context.Context, links []model.ChannelLink) error {
	if len(links) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, l := range links {
		batch.Queue(`
			INSERT INTO project_channels (channel_id, project_id, linked_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id, project_id) DO NOTHING`,
			l.ChannelID, l.ProjectID, now)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("link").Inc()
		return &WriteError{Entity: "channel links", Err: err}
	}
	return nil
}

// UnlinkChannels removes links in one batch; absent pairs are no-ops.
func (r *PostgresRegistry) UnlinkChannels(ctx context.Context, links []model.ChannelLink) error {
	if len(links) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range links {
		batch.Queue(`
			DELETE FROM project_channels
			WHERE channel_id = $1 AND project_id = $2`,
			l.ChannelID, l.ProjectID)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("unlink").Inc()
		return &DeleteError{Entity: "channel links", Err: err}
	}
	return nil
}

// SetProjectStatus flips a project's status and bumps updated_at.
func (r *PostgresRegistry) SetProjectStatus(ctx context.Context, projectID string, status model.ProjectStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET status = $2, updated_at = now()
		WHERE project_id = $1`,
		projectID, status)
	if err != nil {
		metrics.RegistryErrorsTotal.WithLabelValues("status").Inc()
		return false, &WriteError{Entity: "project " + projectID, Err: err}
	}
	return tag.RowsAffected() > 0, nil
}

func scanProjects(rows pgx.Rows) ([]model.Project, error) {
	projects := make([]model.Project, 0)
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ProjectID, &p.APIToken, &p.APIURL, &p.OwnerEmail, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
