package slack

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
)

const (
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
)

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	RunContext(ctx context.Context) error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) RunContext(ctx context.Context) error { return r.client.RunContext(ctx) }
func (r *realSocketClient) EventsChan() chan socketmode.Event    { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// PayloadHandler receives the raw Events API envelope of an inbound event,
// the same bytes the HTTP webhook would have delivered.
type PayloadHandler func(ctx context.Context, payload []byte)

// Listener receives Events API callbacks over Socket Mode and hands their raw
// payloads to a handler. Events are acked before the handler runs.
type Listener struct {
	socket       socketClient
	handler      PayloadHandler
	log          logrus.FieldLogger
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// ListenerOpts holds parameters for creating a Listener.
type ListenerOpts struct {
	AppToken string // xapp-... Slack app-level token for Socket Mode
	BotToken string
	Handler  PayloadHandler
	Log      logrus.FieldLogger
	// For testing: inject a mock socket client.
	Socket socketClient
}

// NewListener creates a Socket Mode Listener.
func NewListener(opts ListenerOpts) (*Listener, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("slack: handler is required")
	}
	socket := opts.Socket
	if socket == nil {
		if opts.AppToken == "" {
			return nil, fmt.Errorf("slack: app token is required for socket mode")
		}
		if opts.BotToken == "" {
			return nil, fmt.Errorf("slack: bot token is required")
		}
		api := slackapi.New(opts.BotToken, slackapi.OptionAppLevelToken(opts.AppToken))
		socket = &realSocketClient{client: socketmode.New(api)}
	}
	return &Listener{
		socket:       socket,
		handler:      opts.Handler,
		log:          logger.Component(opts.Log, "slack-socket"),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Run pumps events until ctx is cancelled or reconnection is exhausted.
func (l *Listener) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.runWithReconnect(ctx)
		cancel()
	}()
	l.pumpEvents(ctx)
	<-done
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when it returns an error.
func (l *Listener) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < l.maxReconnect; attempt++ {
		err := l.socket.RunContext(ctx)
		if err == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * l.baseBackoff
		if wait > l.maxBackoff {
			wait = l.maxBackoff
		}

		l.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"max":     l.maxReconnect,
			"wait":    wait.String(),
		}).Warn("socket mode disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	l.log.Errorf("socket mode exhausted %d reconnection attempts, giving up", l.maxReconnect)
}

// pumpEvents reads Socket Mode events until ctx is done.
func (l *Listener) pumpEvents(ctx context.Context) {
	events := l.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			l.handleSocketEvent(ctx, evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (l *Listener) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		if evt.Request == nil {
			return
		}
		l.socket.Ack(*evt.Request)
		l.handler(ctx, evt.Request.Payload)

	case socketmode.EventTypeConnecting:
		l.log.Info("connecting to socket mode")

	case socketmode.EventTypeConnected:
		l.log.Info("connected to socket mode")

	case socketmode.EventTypeConnectionError:
		l.log.Warnf("connection error: %v", evt.Data)

	case socketmode.EventTypeDisconnect:
		l.log.Info("server requested disconnect, will reconnect")
	}
}
