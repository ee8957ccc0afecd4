package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayworks/threadrelay/internal/backend"
	"github.com/relayworks/threadrelay/internal/model"
	"github.com/relayworks/threadrelay/internal/queue"
	"github.com/relayworks/threadrelay/internal/registry"
	"github.com/relayworks/threadrelay/pkg/logger"
)

type stubBackend struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func (b *stubBackend) Query(ctx context.Context, project model.Project, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.prompts = append(b.prompts, prompt)
	if b.err != nil {
		return "", b.err
	}
	return b.response, nil
}

type stubPoster struct {
	mu      sync.Mutex
	err     error
	replies []postedReply
}

type postedReply struct {
	channelID, threadTS, text string
}

func (p *stubPoster) ReplyInThread(ctx context.Context, channelID, threadTS, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.replies = append(p.replies, postedReply{channelID, threadTS, text})
	return nil
}

type failingRegistry struct {
	registry.TenantRegistry
}

func (failingRegistry) ProjectsForChannel(ctx context.Context, channelID string) ([]model.Project, error) {
	return nil, errors.New("store unavailable")
}

func fencedDecision(answer string, answered bool) string {
	if answered {
		return "```json\n{\"answer\": \"" + answer + "\", \"answered\": true}\n```"
	}
	return "```json\n{\"answer\": \"\", \"answered\": false}\n```"
}

type fixture struct {
	queue    *queue.MemoryQueue
	registry *registry.MemoryRegistry
	backend  *stubBackend
	poster   *stubPoster
	consumer *Consumer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		queue:    queue.NewMemoryQueue(),
		registry: registry.NewMemoryRegistry(),
		backend:  &stubBackend{},
		poster:   &stubPoster{},
	}
	f.consumer = NewConsumer(f.queue, f.registry, f.backend, f.poster, logger.Nop(), Options{})
	return f
}

func (f *fixture) seedProject(t *testing.T, projectID, channelID string, status model.ProjectStatus) {
	t.Helper()
	require.NoError(t, f.registry.CreateProject(context.Background(), model.Project{
		ProjectID:  projectID,
		APIToken:   "tok",
		APIURL:     "https://backend.example.com",
		OwnerEmail: "owner@example.com",
		Status:     status,
	}, channelID))
}

func (f *fixture) deliver(t *testing.T, env model.Envelope) queue.Delivery {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.queue.Send(ctx, env))
	deliveries, err := f.queue.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	return deliveries[0]
}

func testEnvelope() model.Envelope {
	return model.Envelope{
		UserID:    "U111",
		Text:      "what is the rollback procedure?",
		Timestamp: "1712345678.000100",
		ChannelID: "C123456",
	}
}

func TestProcessDeliveryRepliesInThread(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.response = fencedDecision("Run the rollback playbook.", true)

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	require.Len(t, f.poster.replies, 1)
	assert.Equal(t, "C123456", f.poster.replies[0].channelID)
	assert.Equal(t, "1712345678.000100", f.poster.replies[0].threadTS)
	assert.Equal(t, "Run the rollback playbook.", f.poster.replies[0].text)
	assert.Zero(t, f.queue.Len(), "consumed envelope must not requeue")
}

func TestProcessDeliveryStaysSilentWhenNotAnswered(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.response = fencedDecision("", false)

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Empty(t, f.poster.replies)
	assert.Zero(t, f.queue.Len(), "declined answer is terminal, not retried")
}

func TestProcessDeliveryRequeuesOnBackendError(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.err = errors.New("connection refused")

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Empty(t, f.poster.replies)
	assert.Equal(t, 1, f.queue.Len(), "transient backend failure must leave envelope for redelivery")
}

func TestProcessDeliveryRequeuesOnReplyFailure(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.response = fencedDecision("answer", true)
	f.poster.err = errors.New("channel_not_found")

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Equal(t, 1, f.queue.Len())
}

func TestProcessDeliveryAcksWithoutTenant(t *testing.T) {
	f := newFixture(t)

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Zero(t, f.backend.calls, "no backend call without a tenant")
	assert.Empty(t, f.poster.replies)
	assert.Zero(t, f.queue.Len())
}

func TestProcessDeliverySkipsInactiveProject(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusInactive)
	f.backend.response = fencedDecision("answer", true)

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Zero(t, f.backend.calls)
	assert.Zero(t, f.queue.Len())
}

func TestProcessDeliveryPicksNewestActiveProject(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "older", "C123456", model.ProjectStatusActive)
	f.seedProject(t, "newer-inactive", "C123456", model.ProjectStatusInactive)
	f.backend.response = fencedDecision("answer", true)

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	// The inactive newest binding is skipped in favor of the older
	// active one.
	require.Equal(t, 1, f.backend.calls)
	require.Len(t, f.poster.replies, 1)
}

func TestProcessDeliveryAcksOnUndecodableBody(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.err = &backend.DecodeError{ProjectID: "acme", Err: errors.New("invalid character '<'")}

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Empty(t, f.poster.replies)
	assert.Zero(t, f.queue.Len(), "permanently broken backend body must not redeliver")
}

func TestProcessDeliveryAcksOnParseError(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.response = "I refuse to emit structured output."

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Empty(t, f.poster.replies)
	assert.Zero(t, f.queue.Len(), "unparseable decision is terminal, not retried")
}

func TestProcessDeliveryDropsEmptyText(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)

	env := testEnvelope()
	env.Text = "   "
	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, env))

	assert.Zero(t, f.backend.calls)
	assert.Zero(t, f.queue.Len())
}

func TestProcessDeliveryFailsOpenOnRegistryError(t *testing.T) {
	f := newFixture(t)
	f.consumer = NewConsumer(f.queue, failingRegistry{}, f.backend, f.poster, logger.Nop(), Options{})

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	assert.Zero(t, f.backend.calls)
	assert.Empty(t, f.poster.replies)
	assert.Zero(t, f.queue.Len(), "registry failure drops the message rather than retrying forever")
}

func TestProcessDeliveryWrapsTextInPrompt(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.response = fencedDecision("", false)

	f.consumer.ProcessDelivery(context.Background(), f.deliver(t, testEnvelope()))

	require.Len(t, f.backend.prompts, 1)
	assert.Contains(t, f.backend.prompts[0], "what is the rollback procedure?")
	assert.NotEqual(t, "what is the rollback procedure?", f.backend.prompts[0])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.consumer.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunProcessesBatch(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "acme", "C123456", model.ProjectStatusActive)
	f.backend.response = fencedDecision("ok", true)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, f.queue.Send(ctx, testEnvelope()))
	}

	done := make(chan error, 1)
	go func() { done <- f.consumer.Run(ctx) }()

	assert.Eventually(t, func() bool {
		f.poster.mu.Lock()
		defer f.poster.mu.Unlock()
		return len(f.poster.replies) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
