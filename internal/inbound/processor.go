package inbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/agent"
	"github.com/youneslaaroussi/dealwhisperer/internal/chat"
	"github.com/youneslaaroussi/dealwhisperer/internal/logger"
	"github.com/youneslaaroussi/dealwhisperer/internal/models"
	"github.com/youneslaaroussi/dealwhisperer/internal/store"
	"github.com/youneslaaroussi/dealwhisperer/internal/telemetry"
)

// ApologyText is posted in-thread when no reply could be produced.
const ApologyText = "Sorry, I encountered an issue trying to process your message."

// MetadataDealName names deals recovered only from message metadata.
const MetadataDealName = "Unknown (from metadata)"

// Store is the persistence the processor correlates against and writes to.
type Store interface {
	FindActiveThread(ctx context.Context, threadTS string) (*models.ActiveThread, error)
	FindNotificationByMessageTS(ctx context.Context, messageTS string) (*models.StakeholderNotification, error)
	CreateResponse(ctx context.Context, r *models.StakeholderResponse) error
	CreateResolution(ctx context.Context, r *models.DealResolution) error
}

// Processor answers thread replies on a bounded pool of background workers.
type Processor struct {
	store      Store
	replier    agent.Replier
	chat       chat.Client
	dedup      Deduper
	metrics    *telemetry.Metrics
	log        logrus.FieldLogger
	workers    int
	jobTimeout time.Duration

	mu     sync.RWMutex
	jobs   chan ThreadReply
	closed bool
	wg     sync.WaitGroup
}

// ProcessorOpts holds parameters for creating a Processor.
type ProcessorOpts struct {
	Store      Store
	Replier    agent.Replier
	Chat       chat.Client
	Dedup      Deduper // defaults to a one-hour MemoryDeduper
	Metrics    *telemetry.Metrics
	Log        logrus.FieldLogger
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// NewProcessor creates a Processor. Call Start before enqueueing.
func NewProcessor(opts ProcessorOpts) (*Processor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("inbound: store is required")
	}
	if opts.Replier == nil {
		return nil, fmt.Errorf("inbound: replier is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("inbound: chat client is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = time.Minute
	}
	if opts.Dedup == nil {
		opts.Dedup = NewMemoryDeduper(time.Hour)
	}
	p := &Processor{
		store:      opts.Store,
		replier:    opts.Replier,
		chat:       opts.Chat,
		dedup:      opts.Dedup,
		metrics:    opts.Metrics,
		log:        logger.Component(opts.Log, "inbound"),
		workers:    opts.Workers,
		jobTimeout: opts.JobTimeout,
		jobs:       make(chan ThreadReply, opts.QueueSize),
	}
	p.metrics.RegisterQueueDepth(p.Depth)
	return p, nil
}

// Start launches the workers. They drain the queue until Stop is called or
// ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Depth returns the number of queued replies.
func (p *Processor) Depth() int {
	return len(p.jobs)
}

// Dispatch narrows a raw payload and queues it when it is a new thread
// reply. The parsed event is returned so callers can answer handshakes.
func (p *Processor) Dispatch(ctx context.Context, body []byte) (Event, error) {
	evt, err := ParseEvent(body)
	if err != nil {
		p.metrics.Event("invalid")
		return nil, err
	}
	switch e := evt.(type) {
	case Ignored:
		p.metrics.Event("ignored")
		p.log.WithField("reason", e.Reason).Debug("ignoring event")
	case ThreadReply:
		first, err := p.dedup.FirstSeen(ctx, e.EventID)
		if err != nil {
			// Processing twice beats dropping a reply.
			p.log.WithError(err).Warn("event de-duplication unavailable")
			first = true
		}
		if !first {
			p.metrics.Event("duplicate")
			p.log.WithField("event_id", e.EventID).Info("skipping redelivered event")
			return evt, nil
		}
		p.Enqueue(e)
	}
	return evt, nil
}

// Enqueue queues a reply without blocking. It reports false when the reply
// was dropped because the queue is full or stopped.
func (p *Processor) Enqueue(r ThreadReply) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	log := p.log.WithFields(logrus.Fields{"thread_ts": r.ThreadTS, "event_id": r.EventID})
	if p.closed {
		p.metrics.Event("dropped")
		log.Warn("processor stopped, dropping reply")
		return false
	}
	select {
	case p.jobs <- r:
		p.metrics.Event("queued")
		return true
	default:
		p.metrics.Event("dropped")
		log.Error("inbound queue full, dropping reply")
		return false
	}
}

func (p *Processor) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(ctx, r)
		}
	}
}

// run handles one reply inside its own timeout and panic boundary.
func (p *Processor) run(ctx context.Context, r ThreadReply) {
	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			p.metrics.Event("failed")
			p.log.WithFields(logrus.Fields{"thread_ts": r.ThreadTS, "panic": rec}).Error("reply processing panicked")
		}
	}()
	if err := p.Handle(ctx, r); err != nil {
		p.metrics.Event("failed")
		p.log.WithError(err).WithField("thread_ts", r.ThreadTS).Error("reply processing failed")
	}
}

// correlation is what a reply was matched to.
type correlation struct {
	dealID         string
	dealName       string
	notificationID string
}

// Handle correlates a reply with its deal, records it, infers any status
// change and answers in-thread. Only a failed thread lookup is returned;
// everything after correlation is logged.
func (p *Processor) Handle(ctx context.Context, r ThreadReply) error {
	log := p.log.WithFields(logrus.Fields{"thread_ts": r.ThreadTS, "user": r.UserID, "channel": r.ChannelID})

	corr, err := p.correlate(ctx, r, log)
	if err != nil {
		return err
	}
	if corr == nil {
		p.metrics.Event("uncorrelated")
		log.Warn("no deal mapping found in store or metadata, cannot process reply")
		return nil
	}
	log = log.WithField("deal_id", corr.dealID)
	log.Infof("processing reply: %q", r.Text)

	if corr.notificationID != "" {
		p.recordResponse(ctx, r, corr, log)
	}

	reply, err := p.replier.GenerateReply(ctx, r.UserID, r.Text, corr.dealID, r.ThreadTS)
	if err == nil {
		_, err = p.chat.PostMessage(ctx, chat.Message{ChannelID: r.ChannelID, ThreadTS: r.ThreadTS, Text: reply})
	}
	if err != nil {
		log.WithError(err).Error("failed to generate or send reply")
		if _, perr := p.chat.PostMessage(ctx, chat.Message{ChannelID: r.ChannelID, ThreadTS: r.ThreadTS, Text: ApologyText}); perr != nil {
			log.WithError(perr).Error("failed to send apology")
		}
		p.metrics.Event("apologized")
		return nil
	}
	p.metrics.Event("replied")
	log.Info("sent reply in thread")
	return nil
}

// correlate finds the deal a thread is about. A nil result means the reply
// cannot be attributed to any deal.
func (p *Processor) correlate(ctx context.Context, r ThreadReply, log logrus.FieldLogger) (*correlation, error) {
	thread, err := p.store.FindActiveThread(ctx, r.ThreadTS)
	switch {
	case err == nil:
		corr := &correlation{dealID: thread.DealID, dealName: thread.DealName}
		n, err := p.store.FindNotificationByMessageTS(ctx, r.ThreadTS)
		switch {
		case err == nil:
			corr.notificationID = n.ID
		case errors.Is(err, store.ErrNotFound):
			log.Debug("no notification recorded for thread")
		default:
			log.WithError(err).Error("failed to look up notification for thread")
		}
		return corr, nil
	case errors.Is(err, store.ErrNotFound):
		if r.MetaDealID == "" {
			return nil, nil
		}
		log.Warn("thread not found in store, using deal id from metadata")
		return &correlation{dealID: r.MetaDealID, dealName: MetadataDealName}, nil
	default:
		return nil, fmt.Errorf("inbound: look up thread %s: %w", r.ThreadTS, err)
	}
}

// recordResponse stores the reply and, once stored, any status change it
// implies.
func (p *Processor) recordResponse(ctx context.Context, r ThreadReply, corr *correlation, log logrus.FieldLogger) {
	err := p.store.CreateResponse(ctx, &models.StakeholderResponse{
		NotificationID: corr.notificationID,
		ResponseText:   r.Text,
		ResponseTS:     r.TS,
	})
	if err != nil {
		log.WithError(err).Error("failed to record stakeholder response")
		return
	}
	log.WithField("notification_id", corr.notificationID).Info("recorded stakeholder response")

	res, ok := InferResolution(r.Text)
	if !ok {
		return
	}
	user := r.UserID
	err = p.store.CreateResolution(ctx, &models.DealResolution{
		DealID:         corr.dealID,
		PreviousStatus: res.PreviousStatus,
		NewStatus:      res.NewStatus,
		ResolvedBy:     &user,
	})
	if err != nil {
		log.WithError(err).Error("failed to record deal resolution")
		return
	}
	log.WithField("new_status", res.NewStatus).Info("recorded deal resolution")
}
