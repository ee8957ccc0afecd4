// Package registry stores projects and the channel<->project mapping,
// and resolves the owning tenants for inbound messages.
package registry

import (
	"context"
	"fmt"

	"github.com/relayworks/threadrelay/internal/model"
)

// TenantRegistry is the capability interface over tenant state. The
// relay consumer and the management API only depend on this, so they
// can be tested against the in-memory implementation.
type TenantRegistry interface {
	// CreateProject persists a project and its initial channel link in
	// one all-or-nothing transaction. Re-provisioning an existing
	// project_id is an upsert.
	CreateProject(ctx context.Context, p model.Project, channelID string) error

	// ListProjects enumerates projects in stable project_id order.
	// cursor is opaque; an empty next cursor means exhaustion.
	ListProjects(ctx context.Context, limit int, cursor string) ([]model.Project, string, error)

	// ChannelsForProject returns all links for a project. An empty
	// slice is not an error.
	ChannelsForProject(ctx context.Context, projectID string) ([]model.ChannelLink, error)

	// ProjectsForChannel resolves all projects mapped to a channel,
	// most recently linked first (project_id breaks ties). Links whose
	// project no longer exists are skipped silently. An empty slice
	// with a nil error means "no tenant configured"; a non-nil error
	// means the storage layer itself failed.
	ProjectsForChannel(ctx context.Context, channelID string) ([]model.Project, error)

	// DeleteProject removes all channel links and then the project
	// record. Each step is idempotent so the call is safe to retry to
	// completion; links are always removed first so no dangling link
	// can outlive the project.
	DeleteProject(ctx context.Context, projectID string) error

	// LinkChannels adds links in bulk. Already-present pairs are no-ops.
	LinkChannels(ctx context.Context, links []model.ChannelLink) error

	// UnlinkChannels removes links in bulk. Absent pairs are no-ops.
	UnlinkChannels(ctx context.Context, links []model.ChannelLink) error

	// SetProjectStatus updates a project's status and bumps updated_at.
	// Returns false if the project does not exist.
	SetProjectStatus(ctx context.Context, projectID string, status model.ProjectStatus) (bool, error)
}

// WriteError wraps a storage failure during a create/link operation.
type WriteError struct {
	Entity string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("registry write failed for %s: %v", e.Entity, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a storage failure during a lookup.
type ReadError struct {
	Entity string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("registry read failed for %s: %v", e.Entity, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// DeleteError wraps a storage failure during deletion.
type DeleteError struct {
	Entity string
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("registry delete failed for %s: %v", e.Entity, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
