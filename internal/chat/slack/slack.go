// Package slack implements chat.Client on the Slack Web API and an optional
// Socket Mode listener that feeds Events API payloads to a handler.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	slackapi "github.com/slack-go/slack"

	"github.com/youneslaaroussi/dealwhisperer/internal/chat"
	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUsersContext(ctx context.Context, options ...slackapi.GetUsersOption) ([]slackapi.User, error)
}

// Client implements chat.Client for Slack.
type Client struct {
	api slackClient
	log logrus.FieldLogger
}

// ClientOpts holds parameters for creating a Slack Client.
type ClientOpts struct {
	BotToken string // xoxb-... Slack bot token
	Log      logrus.FieldLogger
	// For testing: inject a mock instead of the real Slack API.
	API slackClient
}

var _ chat.Client = (*Client)(nil)

// New creates a Slack Client.
func New(opts ClientOpts) (*Client, error) {
	if opts.API == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	api := opts.API
	if api == nil {
		api = slackapi.New(opts.BotToken)
	}
	return &Client{api: api, log: logger.Component(opts.Log, "slack")}, nil
}

// AuthCheck verifies the bot token and returns the bot's user id.
func (c *Client) AuthCheck(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack: auth test: %w", err)
	}
	c.log.WithFields(logrus.Fields{"team": resp.Team, "user": resp.User}).Info("slack auth ok")
	return resp.UserID, nil
}

// PostMessage posts msg and returns the new message timestamp.
func (c *Client) PostMessage(ctx context.Context, msg chat.Message) (string, error) {
	if msg.ChannelID == "" {
		return "", fmt.Errorf("slack: no channel specified")
	}
	options := buildMessageOptions(msg)

	var ts string
	err := retryOnRateLimit(ctx, func() error {
		var postErr error
		_, ts, postErr = c.api.PostMessageContext(ctx, msg.ChannelID, options...)
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

// SearchUsers lists the workspace directory and returns active human users
// whose real or display name contains query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]chat.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]chat.User, 0)
	if q == "" {
		return out, nil
	}

	var users []slackapi.User
	err := retryOnRateLimit(ctx, func() error {
		var apiErr error
		users, apiErr = c.api.GetUsersContext(ctx)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("slack: list users: %w", err)
	}

	for _, u := range users {
		if u.IsBot || u.Deleted {
			continue
		}
		realName := strings.ToLower(u.RealName)
		display := strings.ToLower(u.Profile.DisplayName)
		if !strings.Contains(realName, q) && !strings.Contains(display, q) {
			continue
		}
		out = append(out, chat.User{ID: u.ID, Name: displayName(u)})
	}
	return out, nil
}

// displayName picks the most human-friendly name Slack has for u.
func displayName(u slackapi.User) string {
	switch {
	case u.RealName != "":
		return u.RealName
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.Name != "":
		return u.Name
	}
	return "Unknown Name"
}

// buildMessageOptions translates a chat.Message into Slack MsgOptions. A
// message with a context line is rendered as Block Kit with the text kept as
// the notification fallback.
func buildMessageOptions(msg chat.Message) []slackapi.MsgOption {
	var options []slackapi.MsgOption

	if msg.ThreadTS != "" {
		options = append(options, slackapi.MsgOptionTS(msg.ThreadTS))
	}

	options = append(options, slackapi.MsgOptionText(msg.Text, false))

	if msg.Context != "" {
		section := slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType, msg.Text, false, false), nil, nil)
		ctxBlock := slackapi.NewContextBlock("",
			slackapi.NewTextBlockObject(slackapi.MarkdownType, msg.Context, false, false))
		options = append(options, slackapi.MsgOptionBlocks(section, ctxBlock))
	}

	if msg.Metadata != nil {
		options = append(options, slackapi.MsgOptionMetadata(slackapi.SlackMetadata{
			EventType:    msg.Metadata.EventType,
			EventPayload: msg.Metadata.Payload,
		}))
	}

	return options
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
