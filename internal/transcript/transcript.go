// Package transcript streams session audio to an external speech-to-text
// service and collects the returned text. The side channel is strictly best
// effort: connection loss or backpressure drops data, never blocks the
// recording pipeline.
package transcript

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"github.com/meetcap/meetcap/internal/util"
)

// Collector receives session audio and accumulates transcript text.
type Collector interface {
	// Feed submits PCM audio. Never blocks; excess data is dropped.
	Feed(pcm []byte)
	// Text returns the transcript collected so far.
	Text() string
	Close() error
}

// segment is one message from the speech-to-text service.
type segment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// wsCollector ships audio over a WebSocket and reads segments back.
type wsCollector struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	audio  chan []byte

	mu       sync.Mutex
	segments []string
	closed   bool
}

// Connect dials the speech-to-text endpoint and starts the send and receive
// loops.
func Connect(ctx context.Context, endpoint string) (Collector, error) {
	conn, resp, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, util.WrapError("dial transcription service", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &wsCollector{
		conn:   conn,
		cancel: cancel,
		audio:  make(chan []byte, 32),
	}
	go c.sendLoop(ctx)
	go c.recvLoop(ctx)
	return c, nil
}

func (c *wsCollector) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pcm := <-c.audio:
			if err := c.conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
				slog.Debug("transcript audio write failed", "error", err)
				return
			}
		}
	}
}

func (c *wsCollector) recvLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var seg segment
		if err := json.Unmarshal(data, &seg); err != nil {
			slog.Debug("unparseable transcript segment", "error", err)
			continue
		}
		if !seg.Final || seg.Text == "" {
			continue
		}

		c.mu.Lock()
		c.segments = append(c.segments, seg.Text)
		c.mu.Unlock()
	}
}

func (c *wsCollector) Feed(pcm []byte) {
	select {
	case c.audio <- pcm:
	default:
		// Transcription lagging; the recording takes priority.
	}
}

func (c *wsCollector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.segments, " ")
}

func (c *wsCollector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "session ended")
}

// Noop is the collector used when transcription is disabled.
type Noop struct{}

func (Noop) Feed([]byte)  {}
func (Noop) Text() string { return "" }
func (Noop) Close() error { return nil }
