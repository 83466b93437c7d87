// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a scripted board. Read blocks for the configured read
// timeout when no data is pending, then returns (0, nil).
type fakeTransport struct {
	mu      sync.Mutex
	rx      []byte
	written [][]byte
	timeout time.Duration
	closed  bool
	readErr error
	resets  int
	reply   func(frame []byte) []byte
	arrived chan struct{}
}

func newFake(reply func(frame []byte) []byte) *fakeTransport {
	return &fakeTransport{
		timeout: 10 * time.Millisecond,
		reply:   reply,
		arrived: make(chan struct{}, 1),
	}
}

// replyWith answers every request with a well-formed reply carrying value.
func replyWith(value uint32) func([]byte) []byte {
	return func(frame []byte) []byte {
		out, err := pinproto.EncodeReply(pinproto.Opcode(frame[1]), value)
		if err != nil {
			panic(err)
		}
		return out
	}
}

func (f *fakeTransport) push(b ...byte) {
	f.mu.Lock()
	f.rx = append(f.rx, b...)
	f.mu.Unlock()
	select {
	case f.arrived <- struct{}{}:
	default:
	}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	frame := append([]byte(nil), p...)
	f.written = append(f.written, frame)
	reply := f.reply
	f.mu.Unlock()

	if reply != nil {
		if resp := reply(frame); len(resp) > 0 {
			f.push(resp...)
		}
	}
	return len(p), nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if f.readErr != nil {
		err := f.readErr
		f.mu.Unlock()
		return 0, err
	}
	if len(f.rx) == 0 {
		timeout := f.timeout
		f.mu.Unlock()
		select {
		case <-f.arrived:
		case <-time.After(timeout):
		}
		f.mu.Lock()
	}
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	f.mu.Unlock()
	return n, nil
}

func (f *fakeTransport) SetReadTimeout(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = t
	return nil
}

func (f *fakeTransport) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.rx = nil
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// recorder collects exchanges for inspection
type recorder struct {
	mu  sync.Mutex
	all []Exchange
}

func (r *recorder) ObserveExchange(ex Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, ex)
}

func (r *recorder) last() Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all[len(r.all)-1]
}

func openLink(t *testing.T, f *fakeTransport, opts ...Option) *Link {
	t.Helper()
	opts = append([]Option{
		WithTimeout(200 * time.Millisecond),
		WithPollInterval(10 * time.Millisecond),
		WithQuietPeriod(20 * time.Millisecond),
		WithDrainTimeout(200 * time.Millisecond),
	}, opts...)
	l := New(opts...)
	require.NoError(t, l.Open(f))
	t.Cleanup(func() { l.Close() })
	return l
}

// ============================================================
// Lifecycle
// ============================================================

func TestLink_NotConnected(t *testing.T) {
	l := New()
	assert.Equal(t, Disconnected, l.State())
	assert.Equal(t, uuid.Nil, l.Session())

	_, err := l.Do(context.Background(), pinproto.Acknowledge{})
	assert.ErrorIs(t, err, ErrNotConnected)

	f := newFake(replyWith(0))
	require.NoError(t, l.Open(f))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "closing twice is a no-op")

	_, err = l.DigitalRead(context.Background(), 13)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, f.writes(), "no bytes may be written while disconnected")
}

func TestLink_OpenTwice(t *testing.T) {
	l := openLink(t, newFake(nil))
	assert.Error(t, l.Open(newFake(nil)))
	assert.Error(t, New().Open(nil))
}

func TestLink_SessionChangesOnReopen(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(newFake(nil)))
	first := l.Session()
	require.NoError(t, l.Close())
	require.NoError(t, l.Open(newFake(nil)))
	defer l.Close()
	assert.NotEqual(t, uuid.Nil, first)
	assert.NotEqual(t, first, l.Session())
}

// ============================================================
// Exchanges
// ============================================================

func TestLink_Acknowledge(t *testing.T) {
	f := newFake(replyWith(0))
	l := openLink(t, f)

	require.NoError(t, l.Acknowledge(context.Background()))
	require.Equal(t, 1, f.writes())
	assert.Equal(t, []byte{0xFE, 0x01, 0xFF}, f.written[0])
}

func TestLink_TypedOperations(t *testing.T) {
	ctx := context.Background()

	f := newFake(replyWith(1))
	l := openLink(t, f)
	level, err := l.DigitalRead(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, pinproto.High, level)
	assert.Equal(t, []byte{0xFE, 0x02, 0x0D, 0xFF}, f.written[0])

	f = newFake(replyWith(512))
	l = openLink(t, f)
	v, err := l.AnalogRead(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(512), v)

	f = newFake(replyWith(61000))
	l = openLink(t, f)
	ms, err := l.ReadClock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(61000), ms)

	f = newFake(replyWith(0))
	l = openLink(t, f)
	require.NoError(t, l.DigitalWrite(ctx, 13, pinproto.High))
	require.NoError(t, l.SetPinMode(ctx, 13, pinproto.ModeOutput))
	require.NoError(t, l.AnalogWrite(ctx, 9, 128))
	require.NoError(t, l.Tone(ctx, 8, 440, 500))
	require.NoError(t, l.NoTone(ctx, 8))
	require.NoError(t, l.Delay(ctx, 0))
	assert.Equal(t, []byte{0xFE, 0x07, 0x08, 0x01, 0xB8, 0x00, 0x00, 0x01, 0xF4, 0xFF}, f.written[3])
}

func TestLink_DigitalReadIsIdempotent(t *testing.T) {
	f := newFake(replyWith(1))
	l := openLink(t, f)

	a, err := l.DigitalRead(context.Background(), 7)
	require.NoError(t, err)
	b, err := l.DigitalRead(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, f.written[0], f.written[1])
}

func TestLink_ValidationBeforeIO(t *testing.T) {
	f := newFake(replyWith(0))
	l := openLink(t, f)

	err := l.DigitalWrite(context.Background(), 300, pinproto.High)
	assert.ErrorIs(t, err, pinproto.ErrFieldOutOfRange)
	err = l.Tone(context.Background(), 3, 20, 0)
	assert.ErrorIs(t, err, &pinproto.ValidationError{Kind: pinproto.FieldOutOfRange, Field: "frequency"})
	assert.Equal(t, 0, f.writes())

	// Validation wins over the connection check
	_, err = New().Do(context.Background(), pinproto.AnalogWrite{Pin: 1, Value: 256})
	assert.ErrorIs(t, err, pinproto.ErrFieldOutOfRange)
}

func TestLink_Rejected(t *testing.T) {
	f := newFake(func(frame []byte) []byte { return pinproto.EncodeNak(pinproto.Opcode(frame[1])) })
	rec := &recorder{}
	l := openLink(t, f, WithObserver(rec))

	err := l.SetPinMode(context.Background(), 2, pinproto.ModeInputPullup)
	assert.ErrorIs(t, err, pinproto.ErrRejected)
	assert.Equal(t, Connected, l.State())

	// A NAK is a complete frame; nothing to drain afterwards
	f.reply = replyWith(0)
	require.NoError(t, l.Acknowledge(context.Background()))
	assert.Equal(t, 0, rec.last().Drained)
	assert.Equal(t, 0, f.resets)
}

func TestLink_InvalidReplyValue(t *testing.T) {
	f := newFake(func([]byte) []byte { return []byte{0xFE, 0x02, 0x02, 0xFF} })
	l := openLink(t, f)

	_, err := l.DigitalRead(context.Background(), 4)
	assert.ErrorIs(t, err, pinproto.ErrInvalidValue)
}

// ============================================================
// Timeouts and resync
// ============================================================

func TestLink_TimeoutBounds(t *testing.T) {
	f := newFake(nil)
	l := openLink(t, f, WithTimeout(100*time.Millisecond))

	start := time.Now()
	err := l.Acknowledge(context.Background())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, Connected, l.State(), "a silent board does not drop the link")
}

func TestLink_TruncatedThenResync(t *testing.T) {
	f := newFake(func([]byte) []byte { return []byte{0xFE, 0x02} })
	rec := &recorder{}
	l := openLink(t, f, WithTimeout(80*time.Millisecond), WithObserver(rec))

	_, err := l.DigitalRead(context.Background(), 13)
	var ferr *pinproto.FrameError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, pinproto.FrameTruncated, ferr.Kind)
	assert.Equal(t, 2, ferr.Received)
	assert.Equal(t, 4, ferr.Expected)

	// The rest of the old frame arrives late
	f.push(0x01, 0xFF)
	f.reply = replyWith(0)

	require.NoError(t, l.Acknowledge(context.Background()))
	assert.Equal(t, 2, rec.last().Drained)
	assert.Equal(t, 1, f.resets)
}

func TestLink_OpcodeMismatchDrainsBeforeNextCommand(t *testing.T) {
	calls := 0
	f := newFake(func(frame []byte) []byte {
		calls++
		if calls == 1 {
			// Reply to some earlier ANALOG_READ
			return []byte{0xFE, 0x05, 0x02, 0x00, 0xFF}
		}
		out, _ := pinproto.EncodeReply(pinproto.Opcode(frame[1]), 0)
		return out
	})
	rec := &recorder{}
	l := openLink(t, f, WithObserver(rec))

	_, err := l.DigitalRead(context.Background(), 13)
	var ferr *pinproto.FrameError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, pinproto.FrameOpcodeMismatch, ferr.Kind)
	assert.Equal(t, byte(0x05), ferr.Got)

	require.NoError(t, l.Acknowledge(context.Background()))
	assert.Greater(t, rec.last().Drained, 0, "stale bytes must be drained before the next write")
	assert.Equal(t, 1, f.resets)
}

func TestLink_LateReplyDrainedAfterTimeout(t *testing.T) {
	calls := 0
	f := newFake(nil)
	f.reply = func(frame []byte) []byte {
		calls++
		if calls == 1 {
			// HIGH, but only after the caller has given up
			late, _ := pinproto.EncodeReply(pinproto.OpDigitalRead, 1)
			go func() {
				time.Sleep(100 * time.Millisecond)
				f.push(late...)
			}()
			return nil
		}
		out, _ := pinproto.EncodeReply(pinproto.Opcode(frame[1]), 0)
		return out
	}
	rec := &recorder{}
	l := openLink(t, f,
		WithTimeout(80*time.Millisecond),
		WithQuietPeriod(50*time.Millisecond),
		WithObserver(rec),
	)

	_, err := l.DigitalRead(context.Background(), 13)
	require.ErrorIs(t, err, ErrTimeout)

	level, err := l.DigitalRead(context.Background(), 13)
	require.NoError(t, err)
	assert.Equal(t, pinproto.Low, level, "the late reply must not answer the second read")
	assert.Equal(t, 4, rec.last().Drained)
	assert.Equal(t, 1, f.resets)
}

func TestLink_NakForOtherOpcode(t *testing.T) {
	calls := 0
	f := newFake(func(frame []byte) []byte {
		calls++
		if calls == 1 {
			return pinproto.EncodeNak(pinproto.OpAnalogWrite)
		}
		out, _ := pinproto.EncodeReply(pinproto.Opcode(frame[1]), 0)
		return out
	})
	rec := &recorder{}
	l := openLink(t, f, WithObserver(rec))

	_, err := l.DigitalRead(context.Background(), 13)
	assert.ErrorIs(t, err, pinproto.ErrOpcodeMismatch)
	assert.NotErrorIs(t, err, pinproto.ErrRejected)

	require.NoError(t, l.Acknowledge(context.Background()))
	assert.Equal(t, 1, rec.last().Drained, "end marker of the foreign NAK")
	assert.Equal(t, 1, f.resets)
}

func TestLink_DelayExtendsTimeout(t *testing.T) {
	f := newFake(nil)
	f.reply = func(frame []byte) []byte {
		go func() {
			time.Sleep(120 * time.Millisecond)
			out, _ := pinproto.EncodeReply(pinproto.OpDelay, 0)
			f.push(out...)
		}()
		return nil
	}
	l := openLink(t, f, WithTimeout(50*time.Millisecond))

	require.NoError(t, l.Delay(context.Background(), 150))
}

// ============================================================
// Concurrency and cancellation
// ============================================================

func TestLink_BusyWhenQueuedPastDeadline(t *testing.T) {
	f := newFake(nil)
	l := openLink(t, f, WithTimeout(300*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- l.Acknowledge(context.Background()) }()
	require.Eventually(t, func() bool { return f.writes() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := l.Do(ctx, pinproto.ReadClock{})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.writes(), "queued command must not reach the wire")

	assert.ErrorIs(t, <-done, ErrTimeout)
}

func TestLink_SerializesConcurrentCallers(t *testing.T) {
	f := newFake(replyWith(1))
	l := openLink(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.DigitalRead(context.Background(), 5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 8, f.writes())
}

func TestLink_CancelMarksDirty(t *testing.T) {
	f := newFake(nil)
	rec := &recorder{}
	l := openLink(t, f, WithObserver(rec))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := l.Do(ctx, pinproto.AnalogRead{Pin: 0})
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Connected, l.State())

	f.reply = replyWith(0)
	require.NoError(t, l.Acknowledge(context.Background()))
	assert.Equal(t, 1, f.resets, "next exchange resynchronizes first")
}

func TestLink_CanceledBeforeStartSkipsIO(t *testing.T) {
	f := newFake(replyWith(0))
	rec := &recorder{}
	l := openLink(t, f, WithObserver(rec))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Do(ctx, pinproto.DigitalWrite{Pin: 13, Level: pinproto.High})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.writes(), "nothing may reach the wire")
	assert.Empty(t, rec.all)

	require.NoError(t, l.Acknowledge(context.Background()))
	assert.Equal(t, 0, f.resets, "the line is still in sync")
	assert.Equal(t, uint64(1), rec.last().Seq)
}

func TestLink_IOErrorDisconnects(t *testing.T) {
	f := newFake(nil)
	f.readErr = errors.New("device unplugged")
	l := openLink(t, f)

	err := l.Acknowledge(context.Background())
	assert.ErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.Equal(t, Disconnected, l.State())
	assert.True(t, f.closed)

	err = l.Acknowledge(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

// ============================================================
// Observers
// ============================================================

func TestLink_ObserverSeesEveryExchange(t *testing.T) {
	f := newFake(replyWith(0))
	rec := &recorder{}
	l := openLink(t, f, WithObserver(rec))

	require.NoError(t, l.Acknowledge(context.Background()))
	require.NoError(t, l.NoTone(context.Background(), 3))

	require.Len(t, rec.all, 2)
	assert.Equal(t, uint64(1), rec.all[0].Seq)
	assert.Equal(t, uint64(2), rec.all[1].Seq)
	assert.Equal(t, l.Session(), rec.all[1].Session)
	assert.Equal(t, []byte{0xFE, 0x08, 0x03, 0xFF}, rec.all[1].Request)
	assert.Equal(t, []byte{0xFE, 0x08, 0xFF}, rec.all[1].Response)
	assert.NotNil(t, rec.all[1].Reply)
}

func TestLink_ObserversRunAfterRelease(t *testing.T) {
	f := newFake(replyWith(0))
	var l *Link
	var fired atomic.Bool
	nested := make(chan error, 1)
	obs := ObserverFunc(func(ex Exchange) {
		if fired.CompareAndSwap(false, true) {
			nested <- l.Acknowledge(context.Background())
		}
	})
	l = openLink(t, f, WithObserver(obs))

	done := make(chan error, 1)
	go func() { done <- l.Acknowledge(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("observer could not use the link")
	}
	assert.NoError(t, <-nested)
	assert.Equal(t, 2, f.writes())
}

func TestStatistics(t *testing.T) {
	stats := NewStatistics()
	f := newFake(replyWith(1))
	l := openLink(t, f, WithObserver(stats), WithTimeout(40*time.Millisecond))

	_, err := l.DigitalRead(context.Background(), 1)
	require.NoError(t, err)
	f.reply = func(frame []byte) []byte { return pinproto.EncodeNak(pinproto.Opcode(frame[1])) }
	_, err = l.DigitalRead(context.Background(), 1)
	require.Error(t, err)
	f.reply = nil
	_, err = l.DigitalRead(context.Background(), 1)
	require.Error(t, err)

	s := stats.Snapshot()
	assert.Equal(t, uint64(3), s.Exchanges)
	assert.Equal(t, uint64(1), s.Succeeded)
	assert.Equal(t, uint64(1), s.Rejected)
	assert.Equal(t, uint64(1), s.Timeouts)
	assert.Equal(t, uint64(2), s.Errors())
	assert.Greater(t, s.AvgRTT(), time.Duration(0))
	assert.Contains(t, stats.String(), "Rejected (NAK):")

	stats.Reset()
	assert.Equal(t, uint64(0), stats.Snapshot().Exchanges)
}
