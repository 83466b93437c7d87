// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestParseParity(t *testing.T) {
	tests := map[string]serial.Parity{
		"":      serial.NoParity,
		"none":  serial.NoParity,
		"O":     serial.OddParity,
		"even":  serial.EvenParity,
		"Mark":  serial.MarkParity,
		"space": serial.SpaceParity,
	}
	for in, want := range tests {
		got, err := ParseParity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseParity("sometimes")
	assert.Error(t, err)
}

func TestParseStopBits(t *testing.T) {
	got, err := ParseStopBits("1.5")
	require.NoError(t, err)
	assert.Equal(t, serial.OnePointFiveStopBits, got)
	got, err = ParseStopBits("2")
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, got)
	_, err = ParseStopBits("3")
	assert.Error(t, err)
}

func TestSerialSettings(t *testing.T) {
	s := DefaultSerialSettings("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0 @ 115200 8N1", s.String())

	s.Parity = serial.EvenParity
	s.StopBits = serial.TwoStopBits
	s.DataBits = 7
	assert.Equal(t, "/dev/ttyACM0 @ 115200 7E2", s.String())

	assert.NoError(t, ValidateDataBits(5))
	assert.Error(t, ValidateDataBits(9))

	s.DataBits = 4
	_, err := OpenSerial(s)
	assert.ErrorContains(t, err, "data bits")
}

func TestPortInfo(t *testing.T) {
	uno := PortInfo{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno", SerialNumber: "85736"}
	assert.Equal(t, "/dev/ttyACM0  USB 2341:0043  Arduino Uno  (serial 85736)", uno.Description())
	vendor, ok := uno.LikelyBoard()
	assert.True(t, ok)
	assert.Equal(t, "Arduino", vendor)

	clone := PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"}
	_, ok = clone.LikelyBoard()
	assert.True(t, ok, "vendor ids are case-insensitive")

	builtin := PortInfo{Name: "/dev/ttyS0"}
	assert.Equal(t, "/dev/ttyS0", builtin.Description())
	_, ok = builtin.LikelyBoard()
	assert.False(t, ok)
}

// ============================================================
// WebSocket Tests
// ============================================================

// echoServer returns every binary message it receives, preceded by a text
// message that clients must ignore.
func echoServer(t *testing.T, wantAuth string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			conn.WriteMessage(websocket.TextMessage, []byte("status"))
			conn.WriteMessage(websocket.BinaryMessage, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_EchoAndPartialReads(t *testing.T) {
	srv := echoServer(t, "")
	ws, err := DialWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv)})
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.Write([]byte{0xFE, 0x0A, 0xFF})
	require.NoError(t, err)

	require.NoError(t, ws.SetReadTimeout(time.Second))
	buf := make([]byte, 2)
	n, err := ws.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE, 0x0A}, buf[:n])

	n, err = ws.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, buf[:n])
}

func TestWebSocket_ReadTimeoutReturnsZero(t *testing.T) {
	srv := echoServer(t, "")
	ws, err := DialWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv)})
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadTimeout(30*time.Millisecond))
	start := time.Now()
	n, err := ws.Read(make([]byte, 4))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// The connection is still usable afterwards
	_, err = ws.Write([]byte{0x01})
	require.NoError(t, err)
	require.NoError(t, ws.SetReadTimeout(time.Second))
	n, err = ws.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWebSocket_ResetInputBuffer(t *testing.T) {
	srv := echoServer(t, "")
	ws, err := DialWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv)})
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.Write([]byte{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	require.NoError(t, ws.SetReadTimeout(time.Second))
	n, err := ws.Read(make([]byte, 1))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, ws.ResetInputBuffer())
	require.NoError(t, ws.SetReadTimeout(30*time.Millisecond))
	n, err = ws.Read(make([]byte, 4))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWebSocket_Close(t *testing.T) {
	srv := echoServer(t, "")
	ws, err := DialWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv)})
	require.NoError(t, err)

	require.NoError(t, ws.Close())
	assert.NoError(t, ws.Close(), "second close is a no-op")
	_, err = ws.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWebSocket_BasicAuth(t *testing.T) {
	// "user:secret"
	srv := echoServer(t, "Basic dXNlcjpzZWNyZXQ=")

	_, err := DialWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv)})
	assert.ErrorContains(t, err, "HTTP 401")

	ws, err := DialWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv), Username: "user", Password: "secret"})
	require.NoError(t, err)
	ws.Close()
}

func TestWebSocket_BadURL(t *testing.T) {
	_, err := DialWebSocket(context.Background(), WebSocketOptions{URL: "http://example.com"})
	assert.ErrorContains(t, err, "unsupported URL scheme")
}
