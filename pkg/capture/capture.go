// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records link exchanges to a file and reads them back.
//
// A capture is a CBOR sequence: one self-delimiting CBOR map per exchange,
// keyed by small integers, appended as exchanges complete.
package capture

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/beyarkay/chat-with-arduino/pkg/link"
	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Record is one captured exchange.
type Record struct {
	Session  []byte `cbor:"1,keyasint"`
	Seq      uint64 `cbor:"2,keyasint"`
	Time     int64  `cbor:"3,keyasint"` // unix nanoseconds at start
	Opcode   uint8  `cbor:"4,keyasint"`
	Request  []byte `cbor:"5,keyasint"`
	Response []byte `cbor:"6,keyasint,omitempty"`
	Value    uint32 `cbor:"7,keyasint,omitempty"`
	OK       bool   `cbor:"8,keyasint"`
	Error    string `cbor:"9,keyasint,omitempty"`
	Drained  int    `cbor:"10,keyasint,omitempty"`
	Micros   int64  `cbor:"11,keyasint"` // exchange duration
}

// SessionID returns the link session the record belongs to.
func (r *Record) SessionID() uuid.UUID {
	id, err := uuid.FromBytes(r.Session)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Started returns the time the exchange began.
func (r *Record) Started() time.Time {
	return time.Unix(0, r.Time)
}

// Duration returns how long the exchange took.
func (r *Record) Duration() time.Duration {
	return time.Duration(r.Micros) * time.Microsecond
}

// FromExchange converts an exchange to a record.
func FromExchange(ex link.Exchange) Record {
	rec := Record{
		Session:  ex.Session[:],
		Seq:      ex.Seq,
		Time:     ex.Started.UnixNano(),
		Opcode:   uint8(ex.Command.Opcode()),
		Request:  ex.Request,
		Response: ex.Response,
		OK:       ex.Err == nil,
		Drained:  ex.Drained,
		Micros:   ex.Duration.Microseconds(),
	}
	if ex.Reply != nil {
		rec.Value = ex.Reply.Value
	}
	if ex.Err != nil {
		rec.Error = ex.Err.Error()
	}
	return rec
}

// Recorder writes every observed exchange to w. It is a link.Observer.
type Recorder struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	count  int
	err    error
}

// NewRecorder creates a recorder. If w is an io.Closer it is closed by Close.
func NewRecorder(w io.Writer) *Recorder {
	r := &Recorder{enc: cbor.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// ObserveExchange appends ex to the capture. After the first write error the
// recorder stops writing; Err reports it.
func (r *Recorder) ObserveExchange(ex link.Exchange) {
	rec := FromExchange(ex)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(&rec); err != nil {
		r.err = fmt.Errorf("capture write failed: %w", err)
		return
	}
	r.count++
}

// Count returns the number of records written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the underlying writer when it is closable.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return r.err
	}
	err := r.closer.Close()
	r.closer = nil
	if r.err != nil {
		return r.err
	}
	return err
}

// Reader reads records back from a capture.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a capture reader
func NewReader(rd io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(rd)}
}

// Next returns the next record, or io.EOF at the end of the capture.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return &rec, nil
}

// ReadAll returns every record in rd.
func ReadAll(rd io.Reader) ([]Record, error) {
	r := NewReader(rd)
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *rec)
	}
}

// FormatRecord renders a record as one log line, e.g.
//
//	[12:00:01.250] #3 DIGITAL_READ  FE 02 0D FF -> FE 02 01 FF  HIGH  (1.2ms)
func FormatRecord(rec *Record) string {
	var sb strings.Builder
	op := pinproto.Opcode(rec.Opcode)

	fmt.Fprintf(&sb, "[%s] #%d %s  % X", rec.Started().Format("15:04:05.000"), rec.Seq, op, rec.Request)
	if len(rec.Response) > 0 {
		fmt.Fprintf(&sb, " -> % X", rec.Response)
	} else {
		sb.WriteString(" -> (nothing)")
	}

	switch {
	case !rec.OK:
		fmt.Fprintf(&sb, "  ERROR: %s", rec.Error)
	default:
		reply := pinproto.Reply{Opcode: op, Value: rec.Value}
		result := pinproto.FormatReply(&reply)
		sb.WriteString("  ")
		sb.WriteString(strings.TrimPrefix(result, op.String()+": "))
	}

	fmt.Fprintf(&sb, "  (%v)", rec.Duration())
	if rec.Drained > 0 {
		fmt.Fprintf(&sb, " [resync: %d bytes discarded]", rec.Drained)
	}
	return sb.String()
}
