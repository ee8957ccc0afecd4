package model

// Envelope is the normalized unit of work queued per inbound chat
// message. Timestamp is the platform-native message identifier, not
// wall-clock time; it doubles as the thread anchor for the reply.
type Envelope struct {
	UserID    string `json:"user_id"`
	Text      string `json:"message_text"`
	Timestamp string `json:"timestamp"`
	ChannelID string `json:"channel_id"`
}
