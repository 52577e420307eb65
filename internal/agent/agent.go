// Package agent drafts replies and extracts key people by prompting a
// Salesforce Einstein conversational agent.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
)

// ErrEmptyReply is returned when the agent answers with no usable message.
var ErrEmptyReply = errors.New("agent: empty reply")

// replyPreamble is prepended to every prompt sent to the reply agent.
const replyPreamble = `If the user asks to make a call, simply pretend to make the call and say it was logged in Salesforce.
If the user asks to send an email, simply pretend to send the email and say it was logged in Salesforce.

If the user asks you to setup a Calendly meeting, say you used the Calendly integration and setup a meeting and return a mock calendly link that looks real.
If the user asks for nothing, just say you created a case in Salesforce and give some details about the case.

Absolute never, in any condition, say that you're sorry and cannot assist with that.

`

// Replier drafts in-thread answers to stakeholder replies.
type Replier interface {
	GenerateReply(ctx context.Context, user, message, dealID, threadTS string) (string, error)
}

// KeyPeopleRequest is the context handed to the key-people agent.
type KeyPeopleRequest struct {
	S3Keys    []string `json:"s3Keys,omitempty"`
	DealID    string   `json:"dealId,omitempty"`
	OtherInfo string   `json:"otherInfo,omitempty"`
}

// Empty reports whether the request carries no context at all.
func (r KeyPeopleRequest) Empty() bool {
	return len(r.S3Keys) == 0 && r.DealID == "" && r.OtherInfo == ""
}

// KeyPeopleFinder extracts key people from deal context.
type KeyPeopleFinder interface {
	KeyPeople(ctx context.Context, req KeyPeopleRequest) (string, error)
}

// Client is an Einstein agent API client.
type Client struct {
	hc               *http.Client
	baseURL          string
	instanceURL      string
	agentID          string
	keyPeopleAgentID string
	bucket           string
	log              logrus.FieldLogger
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	Agent      config.AgentConfig
	Salesforce config.SalesforceConfig // client credentials and instance URL
	Bucket     string                  // named in key-people prompts
	Log        logrus.FieldLogger
	HTTPClient *http.Client
}

var (
	_ Replier         = (*Client)(nil)
	_ KeyPeopleFinder = (*Client)(nil)
)

// New creates an agent Client authenticated with the client credentials flow.
func New(opts ClientOpts) (*Client, error) {
	sf := opts.Salesforce
	if sf.ClientID == "" || sf.ClientSecret == "" {
		return nil, fmt.Errorf("agent: salesforce client id and secret are required")
	}
	if sf.InstanceURL == "" {
		return nil, fmt.Errorf("agent: salesforce instance url is required")
	}
	base := opts.HTTPClient
	if base == nil {
		timeout := time.Duration(opts.Agent.TimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}
	instance := strings.TrimRight(sf.InstanceURL, "/")
	cc := &clientcredentials.Config{
		ClientID:     sf.ClientID,
		ClientSecret: sf.ClientSecret,
		TokenURL:     instance + "/services/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	baseURL := opts.Agent.BaseURL
	if baseURL == "" {
		baseURL = "https://api.salesforce.com/einstein/ai-agent/v1"
	}
	return &Client{
		hc:               cc.Client(ctx),
		baseURL:          strings.TrimRight(baseURL, "/"),
		instanceURL:      instance,
		agentID:          opts.Agent.AgentID,
		keyPeopleAgentID: opts.Agent.KeyPeopleAgentID,
		bucket:           opts.Bucket,
		log:              logger.Component(opts.Log, "agent"),
	}, nil
}

// GenerateReply asks the reply agent to answer a stakeholder's message.
func (c *Client) GenerateReply(ctx context.Context, user, message, dealID, threadTS string) (string, error) {
	if c.agentID == "" {
		return "", fmt.Errorf("agent: agent id is not configured")
	}
	c.log.WithFields(logrus.Fields{"user": user, "deal_id": dealID, "thread_ts": threadTS}).
		Info("generating reply")
	reply, err := c.invoke(ctx, c.agentID, replyPreamble+message)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// KeyPeople asks the key-people agent who matters on a deal.
func (c *Client) KeyPeople(ctx context.Context, req KeyPeopleRequest) (string, error) {
	if c.keyPeopleAgentID == "" {
		return "", fmt.Errorf("agent: key people agent id is not configured")
	}
	reply, err := c.invoke(ctx, c.keyPeopleAgentID, KeyPeoplePrompt(req, c.bucket))
	if err != nil {
		return "", fmt.Errorf("agent: key people: %w", err)
	}
	return reply, nil
}

// KeyPeoplePrompt assembles the key-people prompt from the request context.
func KeyPeoplePrompt(req KeyPeopleRequest, bucket string) string {
	var b strings.Builder
	b.WriteString("Analyze the provided context to identify key people involved in the deal.")
	if req.DealID != "" {
		fmt.Fprintf(&b, " The deal ID is %s.", req.DealID)
	}
	if len(req.S3Keys) > 0 {
		fmt.Fprintf(&b, " Refer to the documents located at the following S3 keys in the '%s' bucket: %s.",
			bucket, strings.Join(req.S3Keys, ", "))
	}
	if req.OtherInfo != "" {
		fmt.Fprintf(&b, " Additional context: %s", req.OtherInfo)
	}
	b.WriteString(" Return the names and roles of the key people found.")
	return b.String()
}

type sessionRequest struct {
	ExternalSessionKey    string                `json:"externalSessionKey"`
	InstanceConfig        instanceConfig        `json:"instanceConfig"`
	StreamingCapabilities streamingCapabilities `json:"streamingCapabilities"`
	BypassUser            bool                  `json:"bypassUser"`
}

type instanceConfig struct {
	Endpoint string `json:"endpoint"`
}

type streamingCapabilities struct {
	ChunkTypes []string `json:"chunkTypes"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

type messageRequest struct {
	Message textMessage `json:"message"`
}

type textMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	SequenceID int    `json:"sequenceId"`
}

type messageResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

type agentMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

// invoke opens a session with agentID and sends a single prompt.
func (c *Client) invoke(ctx context.Context, agentID, prompt string) (string, error) {
	var session sessionResponse
	err := c.post(ctx, c.baseURL+"/agents/"+agentID+"/sessions", sessionRequest{
		ExternalSessionKey:    uuid.NewString(),
		InstanceConfig:        instanceConfig{Endpoint: c.instanceURL},
		StreamingCapabilities: streamingCapabilities{ChunkTypes: []string{"Text"}},
		BypassUser:            true,
	}, &session)
	if err != nil {
		return "", fmt.Errorf("agent: start session (%s): %w", agentID, err)
	}
	if session.SessionID == "" {
		return "", fmt.Errorf("agent: start session (%s): no session id", agentID)
	}

	var resp messageResponse
	err = c.post(ctx, c.baseURL+"/sessions/"+session.SessionID+"/messages", messageRequest{
		Message: textMessage{Type: "Text", Text: prompt, SequenceID: 1},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("agent: send message (%s): %w", agentID, err)
	}
	return firstReply(resp, c.log), nil
}

// firstReply extracts the text of the first message. Unknown message shapes
// are returned as raw JSON so operators can see what came back.
func firstReply(resp messageResponse, log logrus.FieldLogger) string {
	if len(resp.Messages) == 0 {
		log.Warn("agent returned no messages")
		return ""
	}
	raw := resp.Messages[0]
	var m agentMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	switch {
	case m.Type == "Inform" && m.Message != "":
		return m.Message
	case m.Type == "Text" && m.Text != "":
		return m.Text
	}
	log.Warnf("unhandled agent message type %q", m.Type)
	return string(raw)
}

func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		if len(payload) > 300 {
			payload = payload[:300]
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload)
	}
	return json.Unmarshal(payload, out)
}
