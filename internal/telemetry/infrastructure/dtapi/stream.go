package dtapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"coldstorage/internal/observability/metrics"
	telemetry "coldstorage/internal/telemetry/domain"
)

// ErrReconnectsExhausted indicates the stream failed too many times in a row.
var ErrReconnectsExhausted = errors.New("dtapi: stream reconnects exhausted")

// Handler receives decoded stream events in arrival order.
type Handler func(ctx context.Context, evt telemetry.Event) error

// Stream listens for temperature events until ctx is cancelled. A lost
// connection is retried after the reconnect delay; the failure counter resets
// whenever a connection is established.
func (c *Client) Stream(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("dtapi: nil stream handler")
	}
	failures := 0
	for failures < c.reconnects {
		connected, err := c.streamOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
		}
		failures++
		metrics.IncStreamReconnect("dtapi")
		c.logger.Printf("dtapi: stream connection lost, reconnection attempt %d/%d: %v", failures, c.reconnects, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
	return ErrReconnectsExhausted
}

func (c *Client) streamOnce(ctx context.Context, handler Handler) (bool, error) {
	query := url.Values{}
	query.Set("eventTypes", temperatureType)
	req, err := c.newRequest(ctx, c.projectPath("/devices:stream"), query)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("dtapi: stream http %d", resp.StatusCode)
	}
	c.logger.Printf("dtapi: stream connected")

	err = readEvents(resp.Body, func(data string) {
		evt, err := telemetry.ParseStreamMessage([]byte(data))
		if err != nil {
			if !errors.Is(err, telemetry.ErrNotTemperature) {
				c.logger.Printf("dtapi: stream decode error: %v", err)
			}
			return
		}
		if err := handler(ctx, evt); err != nil {
			c.logger.Printf("dtapi: stream handler error: %v", err)
		}
	})
	if err == nil {
		err = io.EOF
	}
	return true, err
}

// readEvents parses a text/event-stream body and calls emit with the data of
// each event. Multi-line data is joined with newlines.
func readEvents(r io.Reader, emit func(data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var data []string
	flush := func() {
		if len(data) > 0 {
			emit(strings.Join(data, "\n"))
			data = data[:0]
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	flush()
	return scanner.Err()
}

