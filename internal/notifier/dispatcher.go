package notifier

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/chat"
	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
	"github.com/youneslaaroussi/dealwhisperer/internal/models"
	"github.com/youneslaaroussi/dealwhisperer/internal/telemetry"
)

// NoticeEventType tags notification messages so replies can carry the deal
// id back even when no thread record exists.
const NoticeEventType = "stale_deal_notice"

// ThreadRecorder persists the correlation rows written on every send.
type ThreadRecorder interface {
	UpsertActiveThread(ctx context.Context, t models.ActiveThread) error
	CreateNotification(ctx context.Context, n *models.StakeholderNotification) error
}

// Dispatcher sends one notification and records how to correlate replies.
type Dispatcher struct {
	chat    chat.Client
	store   ThreadRecorder
	metrics *telemetry.Metrics
	log     logrus.FieldLogger
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Chat    chat.Client
	Store   ThreadRecorder
	Metrics *telemetry.Metrics
	Log     logrus.FieldLogger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Chat == nil {
		return nil, fmt.Errorf("notifier: chat client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("notifier: store is required")
	}
	return &Dispatcher{
		chat:    opts.Chat,
		store:   opts.Store,
		metrics: opts.Metrics,
		log:     logger.Component(opts.Log, "dispatcher"),
	}, nil
}

// SendToStakeholder posts text to userID about a deal and records the new
// thread and notification. Only the post can fail the call; recording
// failures are logged.
func (d *Dispatcher) SendToStakeholder(ctx context.Context, userID, text, dealID, dealName string) (string, error) {
	ts, err := d.chat.PostMessage(ctx, chat.Message{
		ChannelID: userID,
		Text:      text,
		Context:   ContextLine(dealName, dealID),
		Metadata: &chat.Metadata{
			EventType: NoticeEventType,
			Payload:   map[string]interface{}{"deal_id": dealID},
		},
	})
	if err != nil {
		d.metrics.Notification("failed")
		return "", fmt.Errorf("notifier: send to %s: %w", userID, err)
	}
	d.metrics.Notification("sent")

	log := d.log.WithFields(logrus.Fields{"user": userID, "deal_id": dealID, "thread_ts": ts})

	err = d.store.UpsertActiveThread(ctx, models.ActiveThread{
		ThreadTS:  ts,
		DealID:    dealID,
		DealName:  dealName,
		ChannelID: userID,
	})
	if err != nil {
		log.WithError(err).Error("failed to record active thread")
	}

	err = d.store.CreateNotification(ctx, &models.StakeholderNotification{
		StakeholderID:   userID,
		StakeholderRole: InferRole(text),
		DealID:          dealID,
		MessageTS:       ts,
	})
	if err != nil {
		log.WithError(err).Error("failed to record notification")
	}
	return ts, nil
}
