package middleware

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ValidateProjectID validates a tenant project identifier.
func ValidateProjectID(id string) error {
	if len(id) == 0 {
		return errors.New("project_id cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("project_id exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("project_id must be valid UTF-8")
	}
	return nil
}

// ValidateChannelID validates a chat-platform channel identifier.
func ValidateChannelID(id string) error {
	if len(id) == 0 {
		return errors.New("channel_id cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("channel_id exceeds maximum length")
	}
	return nil
}

// ValidateAPIURL validates a tenant backend endpoint.
func ValidateAPIURL(raw string) error {
	if raw == "" {
		return errors.New("api_url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("api_url must be an absolute http(s) URL")
	}
	return nil
}

// ValidateOwnerEmail does a shallow shape check on the owner email.
func ValidateOwnerEmail(email string) error {
	if email == "" {
		return errors.New("owner_email cannot be empty")
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return errors.New("owner_email is not a valid address")
	}
	return nil
}
