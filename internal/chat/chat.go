// Package chat defines the narrow chat-platform contract used to notify
// stakeholders and answer them in-thread.
package chat

import "context"

// Metadata is structured data attached to a posted message. Platforms that
// support it echo it back on events about the message.
type Metadata struct {
	EventType string
	Payload   map[string]interface{}
}

// Message is a message to post.
type Message struct {
	ChannelID string // channel or user id; a user id opens a DM
	ThreadTS  string // reply in this thread (empty for top-level)
	Text      string // main body, platform-native markdown
	Context   string // optional secondary line rendered under the body
	Metadata  *Metadata
}

// User is a directory entry returned by user search.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is implemented by chat platform adapters.
type Client interface {
	// PostMessage posts msg and returns the platform timestamp of the new
	// message, which doubles as its thread id.
	PostMessage(ctx context.Context, msg Message) (string, error)

	// SearchUsers returns active human users whose name contains query,
	// case-insensitively.
	SearchUsers(ctx context.Context, query string) ([]User, error)
}
