// Package model defines data structures for the relay platform.
package model

import (
	"time"
)

// ProjectStatus is the lifecycle status of a project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusInactive ProjectStatus = "inactive"
)

// Project is a tenant: a customer configuration bound to its own AI
// backend credentials and knowledge collection. ProjectID is globally
// unique and immutable after creation.
type Project struct {
	ProjectID  string        `json:"project_id"`
	APIToken   string        `json:"api_token"`
	APIURL     string        `json:"api_url"`
	OwnerEmail string        `json:"owner_email"`
	Status     ProjectStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ChannelLink is an edge in the channel<->project many-to-many relation.
// A (channel_id, project_id) pair is unique.
type ChannelLink struct {
	ChannelID string `json:"channel_id"`
	ProjectID string `json:"project_id"`
}

// CreateProjectRequest is the request to provision a project with its
// initial channel link.
type CreateProjectRequest struct {
	ProjectID  string `json:"project_id"`
	APIToken   string `json:"api_token"`
	APIURL     string `json:"api_url"`
	OwnerEmail string `json:"owner_email"`
	ChannelID  string `json:"channel_id"`
}

// UpdateStatusRequest is the request to change a project's status.
type UpdateStatusRequest struct {
	Status ProjectStatus `json:"status"`
}

// LinkChannelsRequest is the request to bulk link or unlink channels.
type LinkChannelsRequest struct {
	ChannelIDs []string `json:"channel_ids"`
}

// ListProjectsResponse is the response for listing projects.
type ListProjectsResponse struct {
	Projects   []Project `json:"projects"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
