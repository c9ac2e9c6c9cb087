package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"imagereview/internal/model"
)

// ErrStreamClosed is reported by Err after Close.
var ErrStreamClosed = errors.New("live stream closed")

// sseEvent is one parsed Server-Sent Event.
type sseEvent struct {
	name string
	data string
}

// sseReader parses the text/event-stream framing: "event:" and "data:"
// fields, blank-line terminated, with ":" comment lines ignored.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &sseReader{scanner: scanner}
}

func (r *sseReader) next() (sseEvent, error) {
	var ev sseEvent
	var data []string

	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if ev.name == "" && len(data) == 0 {
				continue
			}
			ev.data = strings.Join(data, "\n")
			if ev.name == "" {
				ev.name = "message"
			}
			return ev, nil
		case strings.HasPrefix(line, ":"):
			// heartbeat
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				ev.name = value
			case "data":
				data = append(data, value)
			}
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	return sseEvent{}, io.EOF
}

// LiveStream is an open subscription to a file's live comments.
type LiveStream struct {
	connectionID string
	events       chan model.LiveEvent
	body         io.Closer
	cancel       context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

// ConnectionID is the server-assigned id to pass to Create.
func (s *LiveStream) ConnectionID() string {
	return s.connectionID
}

// Events yields live comments until the stream ends. Check Err afterwards.
func (s *LiveStream) Events() <-chan model.LiveEvent {
	return s.events
}

// Err reports why the stream ended: io.EOF when the server closed it.
func (s *LiveStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream.
func (s *LiveStream) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.err == nil {
			s.err = ErrStreamClosed
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.body.Close()
}

func (s *LiveStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Subscribe opens the live stream for fileID and waits for the server's
// connected event.
func (c *Client) Subscribe(ctx context.Context, fileID string) (*LiveStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, http.MethodGet, "/comments/live?fileId="+url.QueryEscape(fileID), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open live stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return nil, decodeError(resp)
	}

	reader := newSSEReader(resp.Body)
	first, err := reader.next()
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("read connected event: %w", err)
	}
	var hello model.LiveHello
	if first.name != "connected" || json.Unmarshal([]byte(first.data), &hello) != nil || hello.ConnectionID == "" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected first event %q", first.name)
	}

	stream := &LiveStream{
		connectionID: hello.ConnectionID,
		events:       make(chan model.LiveEvent, 16),
		body:         resp.Body,
		cancel:       cancel,
	}
	go stream.pump(streamCtx, reader)
	return stream, nil
}

func (s *LiveStream) pump(ctx context.Context, reader *sseReader) {
	defer close(s.events)

	for {
		ev, err := reader.next()
		if err != nil {
			s.fail(err)
			return
		}
		if ev.name != "comment" {
			continue
		}

		var live model.LiveEvent
		if err := json.Unmarshal([]byte(ev.data), &live); err != nil {
			continue
		}

		select {
		case s.events <- live:
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}
}
