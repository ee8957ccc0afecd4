// Package ingest is the inbound boundary: it verifies Slack event
// payloads, filters noise, and hands genuine user messages to the
// durable queue. No backend calls happen on this path; Slack expects a
// prompt acknowledgment.
package ingest

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/relayworks/threadrelay/internal/model"
	"github.com/relayworks/threadrelay/internal/queue"
	"github.com/relayworks/threadrelay/pkg/logger"
	"github.com/relayworks/threadrelay/pkg/metrics"
)

const maxBodyBytes = 1 << 20

// Handler receives raw Slack events.
type Handler struct {
	queue         queue.Queue
	signingSecret string
	botUserID     string
	logger        *logger.Logger
}

// NewHandler creates the ingestion handler.
func NewHandler(q queue.Queue, signingSecret, botUserID string, log *logger.Logger) *Handler {
	return &Handler{
		queue:         q,
		signingSecret: signingSecret,
		botUserID:     botUserID,
		logger:        log,
	}
}

// HandleEvent handles POST /slack/events.
//
// Signature verification runs before any parsing. A failed or missing
// signature is an observable rejection, not a silent drop, so a
// misconfigured signing secret shows up in logs and status codes.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	sv, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err == nil {
		if _, werr := sv.Write(body); werr == nil {
			err = sv.Ensure()
		} else {
			err = werr
		}
	}
	if err != nil {
		h.logger.Warn("rejected event with bad signature", zap.Error(err))
		metrics.RecordInboundEvent("bad_signature")
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	evt, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Warn("unparseable event payload", zap.Error(err))
		writeStatus(w, http.StatusBadRequest)
		return
	}

	switch evt.Type {
	case slackevents.URLVerification:
		var cr slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &cr); err != nil {
			writeStatus(w, http.StatusBadRequest)
			return
		}
		metrics.RecordInboundEvent("challenge")
		writeJSON(w, map[string]string{"challenge": cr.Challenge})

	case slackevents.CallbackEvent:
		h.handleCallback(r, evt)
		ack(w)

	default:
		metrics.RecordInboundEvent("ignored_type")
		ack(w)
	}
}

func (h *Handler) handleCallback(r *http.Request, evt slackevents.EventsAPIEvent) {
	var user, text, ts, channel, botID, subtype string

	switch ev := evt.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		user, text, ts, channel = ev.User, ev.Text, ev.TimeStamp, ev.Channel
		botID, subtype = ev.BotID, ev.SubType
	case *slackevents.AppMentionEvent:
		user, text, ts, channel = ev.User, ev.Text, ev.TimeStamp, ev.Channel
		botID = ev.BotID
	default:
		metrics.RecordInboundEvent("ignored_type")
		return
	}

	// Reply-loop guard: never enqueue our own (or any bot's) messages.
	if botID != "" || subtype == "bot_message" {
		metrics.RecordInboundEvent("bot_filtered")
		return
	}

	if h.botUserID != "" {
		text = strings.TrimSpace(strings.ReplaceAll(text, "<@"+h.botUserID+">", ""))
	}
	if strings.TrimSpace(text) == "" {
		metrics.RecordInboundEvent("empty_text")
		return
	}

	env := model.Envelope{
		UserID:    user,
		Text:      text,
		Timestamp: ts,
		ChannelID: channel,
	}

	// Queue failure is logged and counted, but Slack still gets its
	// acknowledgment; failing the request would only trigger platform
	// retries against a backend that is already struggling.
	if err := h.queue.Send(r.Context(), env); err != nil {
		h.logger.WithEnvelope(channel, ts).Error("failed to enqueue envelope", zap.Error(err))
		metrics.RecordInboundEvent("queue_error")
		return
	}

	metrics.RecordInboundEvent("enqueued")
	h.logger.WithEnvelope(channel, ts).Debug("envelope enqueued")
}

func ack(w http.ResponseWriter) {
	writeJSON(w, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"ok": false})
}
