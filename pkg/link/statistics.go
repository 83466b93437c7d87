// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

// StatsSnapshot is a point-in-time copy of Statistics.
type StatsSnapshot struct {
	StartTime time.Time

	// Counters
	Exchanges   uint64
	Succeeded   uint64
	Timeouts    uint64
	FrameErrors uint64
	Rejected    uint64
	Invalid     uint64
	IOErrors    uint64
	Canceled    uint64
	Resyncs     uint64
	Discarded   uint64 // bytes thrown away while resynchronizing

	// Round trip of successful exchanges
	LastRTT time.Duration
	MinRTT  time.Duration
	MaxRTT  time.Duration
	SumRTT  time.Duration
}

// Errors returns the number of failed exchanges.
func (s StatsSnapshot) Errors() uint64 {
	return s.Exchanges - s.Succeeded
}

// AvgRTT returns the mean round trip of successful exchanges.
func (s StatsSnapshot) AvgRTT() time.Duration {
	if s.Succeeded == 0 {
		return 0
	}
	return s.SumRTT / time.Duration(s.Succeeded)
}

// Statistics tracks exchange outcomes. It is an Observer.
type Statistics struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{s: StatsSnapshot{StartTime: time.Now()}}
}

// ObserveExchange updates the counters from one exchange.
func (st *Statistics) ObserveExchange(ex Exchange) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := &st.s
	s.Exchanges++
	if ex.Drained > 0 {
		s.Resyncs++
		s.Discarded += uint64(ex.Drained)
	}

	var ferr *pinproto.FrameError
	var perr *pinproto.ProtocolError
	var lerr *Error
	switch {
	case ex.Err == nil:
		s.Succeeded++
		s.LastRTT = ex.Duration
		s.SumRTT += ex.Duration
		if s.MinRTT == 0 || ex.Duration < s.MinRTT {
			s.MinRTT = ex.Duration
		}
		if ex.Duration > s.MaxRTT {
			s.MaxRTT = ex.Duration
		}
	case errors.As(ex.Err, &ferr):
		s.FrameErrors++
	case errors.As(ex.Err, &perr):
		if perr.Kind == pinproto.Rejected {
			s.Rejected++
		} else {
			s.Invalid++
		}
	case errors.As(ex.Err, &lerr):
		switch lerr.Kind {
		case Timeout:
			s.Timeouts++
		case IO:
			s.IOErrors++
		case Canceled:
			s.Canceled++
		}
	}
}

// Snapshot returns a copy of the current counters.
func (st *Statistics) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

// Reset resets all statistics counters
func (st *Statistics) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = StatsSnapshot{StartTime: time.Now()}
}

// String returns a formatted statistics summary
func (st *Statistics) String() string {
	s := st.Snapshot()
	elapsed := time.Since(s.StartTime)

	var okPercent float64
	var rate, errRate float64
	if s.Exchanges > 0 {
		okPercent = float64(s.Succeeded) * 100.0 / float64(s.Exchanges)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(s.Exchanges) / secs
		errRate = float64(s.Errors()) / secs
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Exchanges:       %8d\n", s.Exchanges)
	result += fmt.Sprintf("Succeeded:       %8d (%.1f%%)\n", s.Succeeded, okPercent)

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.FrameErrors > 0 {
		result += fmt.Sprintf("Frame Errors:    %8d\n", s.FrameErrors)
	}
	if s.Rejected > 0 {
		result += fmt.Sprintf("Rejected (NAK):  %8d\n", s.Rejected)
	}
	if s.Invalid > 0 {
		result += fmt.Sprintf("Invalid Values:  %8d\n", s.Invalid)
	}
	if s.IOErrors > 0 {
		result += fmt.Sprintf("I/O Errors:      %8d\n", s.IOErrors)
	}
	if s.Canceled > 0 {
		result += fmt.Sprintf("Canceled:        %8d\n", s.Canceled)
	}
	if s.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d (%d bytes discarded)\n", s.Resyncs, s.Discarded)
	}
	if s.Succeeded > 0 {
		result += fmt.Sprintf("RTT min/avg/max: %v / %v / %v\n",
			s.MinRTT.Round(time.Microsecond), s.AvgRTT().Round(time.Microsecond), s.MaxRTT.Round(time.Microsecond))
	}

	result += fmt.Sprintf("Exchange Rate:   %8.1f /sec\n", rate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", errRate)
	result += "================================\n"

	return result
}
