// Package inbound turns chat webhook deliveries into stakeholder replies. It
// narrows payloads, correlates replies with the notification that started
// the thread, records them and answers in-thread.
package inbound

import (
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack/slackevents"
)

// Event is one of Handshake, ThreadReply or Ignored.
type Event interface {
	isEvent()
}

// Handshake is the endpoint ownership check sent when the webhook URL is
// registered.
type Handshake struct {
	Challenge string
}

// ThreadReply is a human reply posted inside a thread.
type ThreadReply struct {
	EventID    string
	ChannelID  string
	ThreadTS   string
	TS         string
	UserID     string
	Text       string
	MetaDealID string // deal id echoed back from the root message metadata
}

// Ignored is any delivery that needs no processing.
type Ignored struct {
	Reason string
}

func (Handshake) isEvent()   {}
func (ThreadReply) isEvent() {}
func (Ignored) isEvent()     {}

// HeaderRetryNum is set on deliveries Slack is retrying.
const HeaderRetryNum = "X-Slack-Retry-Num"

const (
	typeURLVerification = "url_verification"
	typeEventCallback   = "event_callback"
	typeMessage         = "message"
	subtypeBotMessage   = "bot_message"
)

// envelope carries the outer fields slackevents does not surface.
type envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type     string `json:"type"`
		Metadata *struct {
			EventType    string                 `json:"event_type"`
			EventPayload map[string]interface{} `json:"event_payload"`
		} `json:"metadata"`
	} `json:"event"`
}

// ParseEvent narrows a raw Events API body into an Event.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("inbound: decode payload: %w", err)
	}
	switch {
	case env.Type == typeURLVerification:
		return Handshake{Challenge: env.Challenge}, nil
	case env.Type != typeEventCallback:
		return Ignored{Reason: "unsupported payload type " + env.Type}, nil
	case env.Event.Type != typeMessage:
		return Ignored{Reason: "unsupported event type " + env.Event.Type}, nil
	}

	parsed, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return nil, fmt.Errorf("inbound: parse event: %w", err)
	}
	msg, ok := parsed.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return Ignored{Reason: "not a message event"}, nil
	}

	switch {
	case msg.BotID != "" || msg.SubType == subtypeBotMessage:
		return Ignored{Reason: "bot message"}, nil
	case msg.SubType != "":
		return Ignored{Reason: "message subtype " + msg.SubType}, nil
	case msg.ThreadTimeStamp == "":
		return Ignored{Reason: "not threaded"}, nil
	case msg.Channel == "":
		return Ignored{Reason: "missing channel"}, nil
	}

	reply := ThreadReply{
		EventID:   env.EventID,
		ChannelID: msg.Channel,
		ThreadTS:  msg.ThreadTimeStamp,
		TS:        msg.TimeStamp,
		UserID:    msg.User,
		Text:      msg.Text,
	}
	if md := env.Event.Metadata; md != nil {
		if id, ok := md.EventPayload["deal_id"].(string); ok {
			reply.MetaDealID = id
		}
	}
	return reply, nil
}
