// Package chat posts replies back into the originating conversation.
package chat

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Poster posts a threaded reply into a channel, anchored on the
// original message's platform timestamp.
type Poster interface {
	ReplyInThread(ctx context.Context, channelID, threadTS, text string) error
}

// ReplyError is a platform post failure; the relay treats it as
// transient and leaves the envelope for redelivery.
type ReplyError struct {
	ChannelID string
	Err       error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("reply to channel %s failed: %v", e.ChannelID, e.Err)
}

func (e *ReplyError) Unwrap() error { return e.Err }

// SlackPoster posts via the Slack Web API.
type SlackPoster struct {
	client *slack.Client
}

// NewSlackPoster creates a poster using the bot token.
func NewSlackPoster(botToken string) *SlackPoster {
	return &SlackPoster{client: slack.New(botToken)}
}

func (p *SlackPoster) ReplyInThread(ctx context.Context, channelID, threadTS, text string) error {
	_, _, err := p.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return &ReplyError{ChannelID: channelID, Err: err}
	}
	return nil
}
