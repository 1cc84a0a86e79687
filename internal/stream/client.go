package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitwatch/internal/metrics"
)

// writeTimeout bounds each write on a long-lived stream.
const writeTimeout = 30 * time.Second

// client manages a single SSE connection's write operations.
type client struct {
	w       io.Writer
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendEvent marshals v as JSON and writes it as one SSE event:
//
//	event: <name>
//	id: <id>        (omitted when id is empty)
//	data: <json>
func (c *client) sendEvent(name, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(name)
	b.WriteByte('\n')
	if id != "" {
		b.WriteString("id: ")
		b.WriteString(id)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")

	n, err := c.write(b.String())
	if err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	c.logger.Debug("stream event sent", "remote_ip", c.ip, "event", name, "bytes", n)
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *client) sendRetry(d time.Duration) error {
	_, err := c.write("retry: " + strconv.FormatInt(d.Milliseconds(), 10) + "\n\n")
	return err
}

// sendKeepalive sends an SSE comment line to keep the connection alive.
func (c *client) sendKeepalive() error {
	_, err := c.write(":\n\n")
	return err
}

func (c *client) write(s string) (int, error) {
	// Extend the deadline before each write; the server's WriteTimeout
	// would otherwise cut long-lived streams.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := io.WriteString(c.w, s)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return n, nil
}
