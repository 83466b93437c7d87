// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/beyarkay/chat-with-arduino/pkg/capture"
	"github.com/beyarkay/chat-with-arduino/pkg/link"
	"github.com/beyarkay/chat-with-arduino/pkg/metrics"
	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
	"github.com/beyarkay/chat-with-arduino/pkg/sim"
	"github.com/beyarkay/chat-with-arduino/pkg/transport"
)

// ConnectionError marks failures to reach the board at all. It maps to exit
// code 2.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cerr *ConnectionError
	if errors.As(err, &cerr) || errors.Is(err, link.ErrNotConnected) || errors.Is(err, link.ErrIO) {
		return 2
	}
	return 1
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("ARDUINOCTL_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// serialSettings converts the serial config section
func serialSettings() (transport.SerialSettings, error) {
	s := transport.DefaultSerialSettings(cfg.Serial.Port)
	s.BaudRate = cfg.Serial.Baud
	s.DataBits = cfg.Serial.DataBits

	var err error
	if s.Parity, err = transport.ParseParity(cfg.Serial.Parity); err != nil {
		return s, err
	}
	if s.StopBits, err = transport.ParseStopBits(cfg.Serial.StopBits); err != nil {
		return s, err
	}
	return s, transport.ValidateDataBits(s.DataBits)
}

// OpenTransport opens the simulated board, a WebSocket bridge or a serial
// port, in that order of preference. The password prompt only happens once
// per process.
func OpenTransport(ctx context.Context) (link.Transport, string, error) {
	if cfg.Sim.Enabled {
		return sim.NewBoard(sim.WithLatency(cfg.Sim.Latency)), "Simulated board", nil
	}

	if cfg.WS.URL != "" {
		password := ""
		if cfg.WS.Username != "" {
			var err error
			if password, err = cachedPassword(); err != nil {
				return nil, "", err
			}
		}
		ws, err := transport.DialWebSocket(ctx, transport.WebSocketOptions{
			URL:           cfg.WS.URL,
			Username:      cfg.WS.Username,
			Password:      password,
			SkipSSLVerify: cfg.WS.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return ws, fmt.Sprintf("WebSocket: %s", cfg.WS.URL), nil
	}

	if cfg.Serial.Port != "" {
		settings, err := serialSettings()
		if err != nil {
			return nil, "", err
		}
		port, err := transport.OpenSerial(settings)
		if err != nil {
			return nil, "", err
		}
		return port, fmt.Sprintf("Serial: %s", settings), nil
	}

	return nil, "", fmt.Errorf("one of --port, --url or --sim must be specified")
}

var passwordCache string

func cachedPassword() (string, error) {
	if passwordCache != "" {
		return passwordCache, nil
	}
	pw, err := GetPassword()
	if err != nil {
		return "", err
	}
	passwordCache = pw
	return pw, nil
}

// session bundles a connected link with its observers.
type session struct {
	link     *link.Link
	stats    *link.Statistics
	metrics  *metrics.LinkMetrics
	recorder *capture.Recorder
	server   *http.Server
	info     string
}

// openSession opens the configured transport and wires statistics, metrics
// and capture observers to a new link.
func openSession(ctx context.Context) (*session, error) {
	s := &session{stats: link.NewStatistics()}
	opts := []link.Option{
		link.WithTimeout(cfg.Link.Timeout),
		link.WithPollInterval(cfg.Link.PollInterval),
		link.WithQuietPeriod(cfg.Link.QuietPeriod),
		link.WithDrainTimeout(cfg.Link.DrainTimeout),
		link.WithLogger(logger.Named("link")),
		link.WithObserver(s.stats),
	}

	if cfg.Capture.File != "" {
		f, err := os.OpenFile(cfg.Capture.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture file: %w", err)
		}
		s.recorder = capture.NewRecorder(f)
		opts = append(opts, link.WithObserver(s.recorder))
	}

	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		s.metrics = metrics.NewLinkMetrics(reg)
		opts = append(opts, link.WithObserver(s.metrics))
		s.server = startMetricsServer(cfg.Metrics.Addr, reg)
	}

	s.link = link.New(opts...)

	t, info, err := OpenTransport(ctx)
	if err != nil {
		s.Close()
		return nil, &ConnectionError{Err: err}
	}
	if err := s.link.Open(t); err != nil {
		t.Close()
		s.Close()
		return nil, &ConnectionError{Err: err}
	}
	s.info = info
	return s, nil
}

// reopen replaces a lost transport. The link keeps its observers.
func (s *session) reopen(ctx context.Context) error {
	t, info, err := OpenTransport(ctx)
	if err != nil {
		return err
	}
	if err := s.link.Open(t); err != nil {
		t.Close()
		return err
	}
	s.info = info
	return nil
}

// Reconnect backoff bounds
var (
	reconnectInitial = 1 * time.Second
	reconnectMax     = 30 * time.Second
)

// reconnect calls reopen with exponential backoff until it succeeds.
// Returns false if ctx ended first.
func (s *session) reconnect(ctx context.Context) bool {
	backoff := reconnectInitial
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		err := s.reopen(ctx)
		if err == nil {
			return true
		}
		logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retryIn", backoff*2))

		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (s *session) Close() error {
	var err error
	if s.link != nil {
		err = s.link.Close()
	}
	if s.recorder != nil {
		if cerr := s.recorder.Close(); cerr != nil {
			logger.Warn("capture file error", zap.Error(cerr))
		}
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
	return err
}

// startMetricsServer serves /metrics in the background
func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// runOne validates c, opens a session, performs c and prints the reply.
func runOne(cmd *cobra.Command, c pinproto.Command) error {
	if err := pinproto.Validate(c); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	reply, err := s.link.Do(ctx, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pinproto.FormatReply(reply))
	return nil
}
