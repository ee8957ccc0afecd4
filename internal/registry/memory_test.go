package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayworks/threadrelay/internal/model"
)

func newProject(id string) model.Project {
	return model.Project{
		ProjectID:  id,
		APIToken:   "token-" + id,
		APIURL:     "https://backend.example.com/" + id,
		OwnerEmail: id + "@example.com",
		Status:     model.ProjectStatusActive,
	}
}

func TestCreateProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("acme"), "C001"))

	projects, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "acme", projects[0].ProjectID)
	assert.Equal(t, model.ProjectStatusActive, projects[0].Status)
	assert.False(t, projects[0].CreatedAt.IsZero())

	links, err := reg.ChannelsForProject(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "C001", links[0].ChannelID)
}

func TestCreateProjectUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("acme"), "C001"))
	first, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)

	updated := newProject("acme")
	updated.OwnerEmail = "new-owner@example.com"
	require.NoError(t, reg.CreateProject(ctx, updated, "C001"))

	second, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "new-owner@example.com", second[0].OwnerEmail)
	assert.Equal(t, first[0].CreatedAt, second[0].CreatedAt)
}

func TestProjectsForChannelOrdering(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("older"), "C001"))
	require.NoError(t, reg.CreateProject(ctx, newProject("newer"), "C001"))

	projects, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)
	require.Len(t, projects, 2)

	// Most recently linked first.
	assert.Equal(t, "newer", projects[0].ProjectID)
	assert.Equal(t, "older", projects[1].ProjectID)
}

func TestProjectsForChannelSkipsDanglingLinks(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("alive"), "C001"))
	require.NoError(t, reg.LinkChannels(ctx, []model.ChannelLink{
		{ChannelID: "C001", ProjectID: "ghost"},
	}))

	projects, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "alive", projects[0].ProjectID)
}

func TestProjectsForChannelEmpty(t *testing.T) {
	reg := NewMemoryRegistry()

	projects, err := reg.ProjectsForChannel(context.Background(), "C404")
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestLinkChannelsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("acme"), "C001"))
	link := []model.ChannelLink{{ChannelID: "C002", ProjectID: "acme"}}
	require.NoError(t, reg.LinkChannels(ctx, link))
	require.NoError(t, reg.LinkChannels(ctx, link))

	links, err := reg.ChannelsForProject(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestUnlinkChannels(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("acme"), "C001"))
	require.NoError(t, reg.UnlinkChannels(ctx, []model.ChannelLink{
		{ChannelID: "C001", ProjectID: "acme"},
	}))

	projects, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)
	assert.Empty(t, projects)

	// Unlinking again is a no-op.
	require.NoError(t, reg.UnlinkChannels(ctx, []model.ChannelLink{
		{ChannelID: "C001", ProjectID: "acme"},
	}))
}

func TestDeleteProjectRemovesLinks(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("acme"), "C001"))
	require.NoError(t, reg.LinkChannels(ctx, []model.ChannelLink{
		{ChannelID: "C002", ProjectID: "acme"},
	}))

	require.NoError(t, reg.DeleteProject(ctx, "acme"))

	links, err := reg.ChannelsForProject(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, links)

	projects, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)
	assert.Empty(t, projects)

	// Deleting a missing project succeeds.
	require.NoError(t, reg.DeleteProject(ctx, "acme"))
}

func TestSetProjectStatus(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.CreateProject(ctx, newProject("acme"), "C001"))

	found, err := reg.SetProjectStatus(ctx, "acme", model.ProjectStatusInactive)
	require.NoError(t, err)
	assert.True(t, found)

	projects, err := reg.ProjectsForChannel(ctx, "C001")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, model.ProjectStatusInactive, projects[0].Status)

	found, err = reg.SetProjectStatus(ctx, "missing", model.ProjectStatusActive)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListProjectsPagination(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	for _, id := range []string{"alpha", "bravo", "charlie", "delta", "echo"} {
		require.NoError(t, reg.CreateProject(ctx, newProject(id), "C-"+id))
	}

	page1, cursor, err := reg.ListProjects(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "alpha", page1[0].ProjectID)
	assert.Equal(t, "bravo", page1[1].ProjectID)
	require.NotEmpty(t, cursor)

	page2, cursor, err := reg.ListProjects(ctx, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "charlie", page2[0].ProjectID)
	assert.Equal(t, "delta", page2[1].ProjectID)

	page3, _, err := reg.ListProjects(ctx, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "echo", page3[0].ProjectID)
}
