// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketOptions configures DialWebSocket.
type WebSocketOptions struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	DialTimeout   time.Duration // default 15s
}

// WebSocket carries the byte stream of a serial bridge as binary messages.
//
// gorilla connections are unusable after a read deadline fires, so a single
// goroutine owns ReadMessage and hands payloads over a channel; Read applies
// its timeout to the channel instead.
type WebSocket struct {
	conn    *websocket.Conn
	msgs    chan []byte
	done    chan struct{}
	writeMu sync.Mutex

	mu      sync.Mutex
	buf     []byte
	timeout time.Duration
	err     error // terminal reader error
	closed  bool
	once    sync.Once
}

// DialWebSocket opens a WebSocket connection with HTTP Basic auth
func DialWebSocket(ctx context.Context, opts WebSocketOptions) (*WebSocket, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return newWebSocket(conn), nil
}

func newWebSocket(conn *websocket.Conn) *WebSocket {
	w := &WebSocket{
		conn:    conn,
		msgs:    make(chan []byte, 64),
		done:    make(chan struct{}),
		timeout: time.Second,
	}
	go w.readLoop()
	return w
}

func (w *WebSocket) readLoop() {
	defer close(w.msgs)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if w.closed {
				w.err = ErrConnectionClosed
			} else {
				w.err = err
			}
			w.mu.Unlock()
			return
		}
		// Only binary messages carry protocol bytes
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		select {
		case w.msgs <- data:
		case <-w.done:
			return
		}
	}
}

// Read returns buffered bytes, or waits up to the read timeout for the next
// message. It returns (0, nil) on timeout.
func (w *WebSocket) Read(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		w.mu.Unlock()
		return n, nil
	}
	timeout := w.timeout
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.msgs:
		if !ok {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.err == nil {
				return 0, ErrConnectionClosed
			}
			return 0, w.err
		}
		n := copy(p, data)
		if n < len(data) {
			w.mu.Lock()
			w.buf = append(w.buf, data[n:]...)
			w.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	case <-w.done:
		return 0, ErrConnectionClosed
	}
}

func (w *WebSocket) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout bounds the next reads.
func (w *WebSocket) SetReadTimeout(t time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = t
	return nil
}

// ResetInputBuffer drops bytes that have arrived but not been read.
func (w *WebSocket) ResetInputBuffer() error {
	w.mu.Lock()
	w.buf = nil
	w.mu.Unlock()
	for {
		select {
		case _, ok := <-w.msgs:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (w *WebSocket) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
		w.writeMu.Lock()
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}
