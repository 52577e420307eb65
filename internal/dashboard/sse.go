package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Snapshotter produces dashboard snapshots.
type Snapshotter interface {
	Get(ctx context.Context) (Snapshot, error)
}

// StreamOpts tunes the snapshot stream.
type StreamOpts struct {
	Interval  time.Duration // snapshot poll interval, default 3s
	Heartbeat time.Duration // keep-alive interval, default 15s
	Log       logrus.FieldLogger
}

// StreamHandler serves dashboard snapshots as server-sent events. A
// snapshot is sent on connect and then whenever it changes.
func StreamHandler(src Snapshotter, opts StreamOpts) gin.HandlerFunc {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		var last []byte
		push := func() {
			snap, err := src.Get(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("dashboard snapshot failed")
				}
				return
			}
			data, err := json.Marshal(snap)
			if err != nil || bytes.Equal(data, last) {
				return
			}
			last = data
			fmt.Fprintf(c.Writer, "event: snapshot\ndata: %s\n\n", data)
			c.Writer.Flush()
		}
		push()

		ticker := time.NewTicker(opts.Interval)
		heartbeat := time.NewTicker(opts.Heartbeat)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				push()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
