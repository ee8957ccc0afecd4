package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/relayworks/threadrelay/internal/model"
)

// MemoryRegistry is an in-memory TenantRegistry. It backs tests and
// local development; the ordering guarantees match the Postgres
// implementation (most recently linked first, project_id tie-break).
type MemoryRegistry struct {
	mu       sync.RWMutex
	projects map[string]model.Project
	links    map[model.ChannelLink]time.Time
	seq      int64
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		projects: make(map[string]model.Project),
		links:    make(map[model.ChannelLink]time.Time),
	}
}

func (r *MemoryRegistry) CreateProject(ctx context.Context, p model.Project, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.projects[p.ProjectID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.projects[p.ProjectID] = p

	link := model.ChannelLink{ChannelID: channelID, ProjectID: p.ProjectID}
	if _, ok := r.links[link]; !ok {
		r.links[link] = r.tick()
	}
	return nil
}

func (r *MemoryRegistry) ListProjects(ctx context.Context, limit int, cursor string) ([]model.Project, string, error) {
	if limit <= 0 {
		limit = 25
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.projects))
	for id := range r.projects {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if len(ids) > limit {
		ids = ids[:limit]
	}
	projects := make([]model.Project, 0, len(ids))
	for _, id := range ids {
		projects = append(projects, r.projects[id])
	}

	next := ""
	if len(projects) == limit {
		next = projects[len(projects)-1].ProjectID
	}
	return projects, next, nil
}

func (r *MemoryRegistry) ChannelsForProject(ctx context.Context, projectID string) ([]model.ChannelLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links := make([]model.ChannelLink, 0)
	for l := range r.links {
		if l.ProjectID == projectID {
			links = append(links, l)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		ti, tj := r.links[links[i]], r.links[links[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return links[i].ChannelID < links[j].ChannelID
	})
	return links, nil
}

func (r *MemoryRegistry) ProjectsForChannel(ctx context.Context, channelID string) ([]model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]model.ChannelLink, 0)
	for l := range r.links {
		if l.ChannelID == channelID {
			candidates = append(candidates, l)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := r.links[candidates[i]], r.links[candidates[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return candidates[i].ProjectID < candidates[j].ProjectID
	})

	projects := make([]model.Project, 0, len(candidates))
	for _, l := range candidates {
		// Dangling links resolve to nothing, same as the store.
		if p, ok := r.projects[l.ProjectID]; ok {
			projects = append(projects, p)
		}
	}
	return projects, nil
}

func (r *MemoryRegistry) DeleteProject(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for l := range r.links {
		if l.ProjectID == projectID {
			delete(r.links, l)
		}
	}
	delete(r.projects, projectID)
	return nil
}

func (r *MemoryRegistry) LinkChannels(ctx context.Context, links []model.ChannelLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range links {
		if _, ok := r.links[l]; !ok {
			r.links[l] = r.tick()
		}
	}
	return nil
}

func (r *MemoryRegistry) UnlinkChannels(ctx context.Context, links []model.ChannelLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range links {
		delete(r.links, l)
	}
	return nil
}

func (r *MemoryRegistry) SetProjectStatus(ctx context.Context, projectID string, status model.ProjectStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok {
		return false, nil
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	r.projects[projectID] = p
	return true, nil
}

// tick returns strictly increasing timestamps so link ordering is
// deterministic even when links land within the same wall-clock tick.
func (r *MemoryRegistry) tick() time.Time {
	r.seq++
	return time.Unix(0, r.seq)
}
