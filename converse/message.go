package converse

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/go-converse/checksum"
	"github.com/arloliu/go-converse/internal/util"
	"github.com/arloliu/go-converse/stream"
)

// MessageType is the kind of exchange a message performs.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageRead
	MessageFind
	MessageExtract
	MessageExtractDynamic
	MessageSend
)

func (t MessageType) String() string {
	switch t {
	case MessageRead:
		return "Read"
	case MessageFind:
		return "Find"
	case MessageExtract:
		return "Extract"
	case MessageExtractDynamic:
		return "ExtractDynamic"
	case MessageSend:
		return "Send"
	}

	return "Unknown"
}

// ByteStatus classifies one received byte against the message template.
type ByteStatus int

const (
	StatusMatch ByteStatus = iota
	StatusMismatch
	StatusExtract
	StatusIgnored
)

func (s ByteStatus) rune() byte {
	switch s {
	case StatusMatch:
		return '.'
	case StatusMismatch:
		return 'X'
	case StatusExtract:
		return 'E'
	}

	return '-'
}

// MessageRecord is the outcome of one receive or find attempt.
type MessageRecord struct {
	Expected   []byte
	Actual     []byte
	Status     []ByteStatus
	Conformant bool
	Match      stream.MatchInfo
}

// StatusString renders Status one character per byte: '.' match, 'X' mismatch,
// 'E' extracted and '-' not received.
func (r *MessageRecord) StatusString() string {
	if r == nil {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(r.Status))
	for _, s := range r.Status {
		sb.WriteByte(s.rune())
	}

	return sb.String()
}

func (r *MessageRecord) add(expected, actual []byte, status ByteStatus) {
	r.Expected = append(r.Expected, expected...)
	r.Actual = append(r.Actual, actual...)
	for i := range expected {
		switch {
		case i >= len(actual):
			r.Status = append(r.Status, StatusIgnored)
		case status == StatusMatch && expected[i] != actual[i]:
			r.Status = append(r.Status, StatusMismatch)
		default:
			r.Status = append(r.Status, status)
		}
	}
	// bytes beyond the template, as captured by dynamic payloads
	for i := len(expected); i < len(actual); i++ {
		r.Status = append(r.Status, status)
	}
}

func (r *MessageRecord) markMismatch(from, n int) {
	for i := from; i < from+n && i < len(r.Status); i++ {
		r.Status[i] = StatusMismatch
	}
}

func (r *MessageRecord) conformant() bool {
	for _, s := range r.Status {
		if s == StatusMismatch || s == StatusIgnored {
			return false
		}
	}

	return true
}

// Message is one step of a conversation.
type Message struct {
	converse     *Converse
	conversation *Conversation
	typ          MessageType
	text         string
	elements     []Element
}

// NewMessage builds a message from elements. An Extract message whose first
// variable is a DynamicByteVar becomes ExtractDynamic.
func NewMessage(c *Converse, conv *Conversation, typ MessageType, text string, elements ...Element) *Message {
	if typ == MessageExtract {
		for _, el := range elements {
			if u, ok := el.(*UseVariable); ok {
				if u.isDynamic() {
					typ = MessageExtractDynamic
				}
				break
			}
		}
	}

	return &Message{
		converse:     c,
		conversation: conv,
		typ:          typ,
		text:         text,
		elements:     elements,
	}
}

// Type returns the message type.
func (m *Message) Type() MessageType { return m.typ }

// Text returns the definition line the message was parsed from.
func (m *Message) Text() string { return m.text }

// Elements returns the message elements.
func (m *Message) Elements() []Element { return util.CloneSlice(m.elements, 0) }

// Bytes serialises the message. Dynamic payload slots are skipped; checksum slots
// are computed over the checksum-eligible parts preceding them and stored back
// into their variable. With session escaping every element except '~' literals
// is byte-stuffed; checksums cover the unescaped bytes.
func (m *Message) Bytes() []byte {
	var (
		out   []byte
		parts [][]byte
	)

	for _, el := range m.elements {
		u, isVar := el.(*UseVariable)
		if isVar && u.isDynamic() {
			continue
		}
		if isVar && u.checksum != ChecksumNone {
			cs := m.converse.checksumBytes(u.checksum, parts)
			if err := u.variable.SetBytes(cs, 0, len(cs)); err != nil {
				m.converse.logger.Warn("converse: cannot store checksum", "variable", u.variable.Name(), "error", err)
			}
			out = append(out, m.wire(el, cs)...)

			continue
		}

		b := el.Bytes()
		if !el.ExcludeFromChecksum() {
			parts = append(parts, b)
		}
		out = append(out, m.wire(el, b)...)
	}

	return out
}

// escaped reports whether el travels byte-stuffed. Literals excluded from the
// checksum are frame delimiters and stay raw.
func (m *Message) escaped(el Element) bool {
	if !m.converse.cfg.escape {
		return false
	}
	if l, ok := el.(*Literal); ok && l.exclude {
		return false
	}

	return true
}

func (m *Message) wire(el Element, b []byte) []byte {
	if m.escaped(el) {
		return EscapeBytes(b)
	}

	return b
}

// Send writes the message to the session stream, first waiting out the session
// send gap.
func (m *Message) Send(ctx context.Context) error {
	ds := m.converse.DeviceStream()
	if ds == nil {
		return ErrNoDeviceStream
	}

	if err := m.converse.waitSendGap(ctx); err != nil {
		return err
	}

	data := m.Bytes()
	err := ds.Write(data)
	m.converse.markSent()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	m.converse.metrics.incMessageSendCount()

	return nil
}

// receiveDeadline splits one message timeout across the per-element reads.
type receiveDeadline struct {
	at time.Time
}

func newReceiveDeadline(timeout time.Duration) receiveDeadline {
	if timeout <= 0 {
		return receiveDeadline{}
	}

	return receiveDeadline{at: time.Now().Add(timeout)}
}

func (d receiveDeadline) remaining() time.Duration {
	if d.at.IsZero() {
		return 0
	}

	return max(time.Until(d.at), time.Nanosecond)
}

// Receive reads the message from the stream and matches it against the template.
//
// Variable slots capture the received bytes. Checksum slots capture and then
// verify against a checksum recomputed over the received eligible parts. A dynamic
// payload is captured up to the literal delimiter following it.
//
// When the message does not conform and continueOnFailure is false the stream
// buffers are purged.
func (m *Message) Receive(timeout time.Duration, continueOnFailure bool) (*MessageRecord, error) {
	ds := m.converse.DeviceStream()
	if ds == nil {
		return nil, ErrNoDeviceStream
	}

	rec := &MessageRecord{}
	deadline := newReceiveDeadline(timeout)
	var parts [][]byte

	for i := 0; i < len(m.elements); i++ {
		switch el := m.elements[i].(type) {
		case *Literal:
			expected := el.raw
			actual, err := m.read(ds, rec, len(expected), deadline, m.escaped(el))
			rec.add(expected, actual, StatusMatch)
			if err != nil || rec.Match.Timeout {
				return m.fail(ds, rec, err, continueOnFailure)
			}
			if !el.exclude {
				parts = append(parts, actual)
			}

		case *UseVariable:
			if el.isDynamic() {
				var delim *Literal
				if i+1 < len(m.elements) {
					delim, _ = m.elements[i+1].(*Literal)
				}
				if delim == nil {
					return m.fail(ds, rec, fmt.Errorf("%w: dynamic variable %q has no delimiter", ErrSyntax, el.variable.Name()), continueOnFailure)
				}
				if err := m.receiveDynamic(ds, rec, el, delim, deadline); err != nil || !rec.Match.Matched {
					return m.fail(ds, rec, err, continueOnFailure)
				}
				parts = append(parts, el.variable.Bytes())
				if !delim.exclude {
					parts = append(parts, delim.raw)
				}
				i++

				continue
			}

			n := el.wireLen()
			expected := el.variable.Bytes()
			if el.checksum != ChecksumNone {
				expected = m.converse.checksumBytes(el.checksum, parts)
			}

			actual, err := m.read(ds, rec, n, deadline, m.escaped(el))
			status := StatusExtract
			if el.checksum != ChecksumNone {
				status = StatusMatch
			}
			start := len(rec.Status)
			rec.add(padTo(expected, n), actual, status)
			if err != nil || rec.Match.Timeout {
				return m.fail(ds, rec, err, continueOnFailure)
			}

			if el.checksum != ChecksumNone && slices.Contains(rec.Status[start:], StatusMismatch) {
				rec.markMismatch(start, n)
			}
			if serr := el.variable.SetBytes(actual, 0, len(actual)); serr != nil {
				rec.markMismatch(start, n)
				return m.fail(ds, rec, serr, continueOnFailure)
			}
			if el.checksum == ChecksumNone {
				parts = append(parts, actual)
			}
		}
	}

	rec.Conformant = rec.conformant()
	if !rec.Conformant {
		return m.fail(ds, rec, nil, continueOnFailure)
	}
	m.converse.metrics.incMessageRecvCount()

	return rec, nil
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}

	return util.CloneSlice(b, n)
}

// read returns n bytes of the element. An escaped element is read until n
// unescaped bytes are collected; each raw byte yields at most one.
func (m *Message) read(ds stream.DeviceStream, rec *MessageRecord, n int, deadline receiveDeadline, escaped bool) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if !escaped {
		return m.readRaw(ds, rec, n, deadline)
	}

	out := make([]byte, 0, n)
	pending := false
	for len(out) < n {
		raw, err := m.readRaw(ds, rec, n-len(out), deadline)
		for _, b := range raw {
			switch {
			case pending:
				out = append(out, b^0x20)
				pending = false
			case b == escapeByte:
				pending = true
			default:
				out = append(out, b)
			}
		}
		if err != nil || rec.Match.Timeout {
			return out, err
		}
	}

	return out, nil
}

func (m *Message) readRaw(ds stream.DeviceStream, rec *MessageRecord, n int, deadline receiveDeadline) ([]byte, error) {
	actual, info, err := ds.ReadFromBuffer(n, n, deadline.remaining())
	rec.Match.BytesRead += info.BytesRead
	rec.Match.TotalBytesRead = info.TotalBytesRead
	rec.Match.Timeout = info.Timeout
	rec.Match.Matched = info.Matched

	return actual, err
}

func (m *Message) receiveDynamic(ds stream.DeviceStream, rec *MessageRecord, u *UseVariable, delim *Literal, deadline receiveDeadline) error {
	dv, _ := u.variable.(*DynamicByteVar)

	limit := dv.maxSize
	if m.escaped(u) {
		limit *= 2
	}
	info, payload, err := ds.FindInBuffer(delim.raw, limit, true, deadline.remaining())
	rec.Match.BytesRead += info.BytesRead
	rec.Match.BytesSkipped += info.BytesSkipped
	rec.Match.TotalBytesRead = info.TotalBytesRead
	rec.Match.Timeout = info.Timeout
	rec.Match.Matched = info.Matched
	if err != nil {
		return err
	}
	if !info.Matched {
		if !info.Timeout {
			rec.Status = append(rec.Status, StatusMismatch)
		}
		return nil
	}

	if m.escaped(u) {
		if payload, err = UnescapeBytes(payload); err != nil {
			return err
		}
	}
	rec.add(nil, payload, StatusExtract)
	rec.add(delim.raw, delim.raw, StatusMatch)

	return dv.SetBytes(payload, 0, len(payload))
}

// Find searches forward in the stream for the message bytes, discarding what
// precedes them.
func (m *Message) Find(timeout time.Duration, continueOnFailure bool) (*MessageRecord, error) {
	ds := m.converse.DeviceStream()
	if ds == nil {
		return nil, ErrNoDeviceStream
	}

	expected := m.Bytes()
	info, _, err := ds.FindInBuffer(expected, -1, true, timeout)
	rec := &MessageRecord{Expected: expected, Match: info}
	if err != nil || !info.Matched {
		rec.Status = make([]ByteStatus, len(expected))
		for i := range rec.Status {
			rec.Status[i] = StatusIgnored
		}

		return m.fail(ds, rec, err, continueOnFailure)
	}

	rec.Actual = util.CloneSlice(expected, 0)
	rec.Status = make([]ByteStatus, len(expected))
	rec.Conformant = true
	m.converse.metrics.incMessageRecvCount()

	return rec, nil
}

// fail classifies a failed receive, purging the stream unless the caller wants
// to continue on failure.
func (m *Message) fail(ds stream.DeviceStream, rec *MessageRecord, cause error, continueOnFailure bool) (*MessageRecord, error) {
	rec.Conformant = false

	var err error
	switch {
	case cause != nil:
		err = cause
	case rec.Match.Timeout:
		m.converse.metrics.incTimeoutCount()
		err = ErrTimeout
	case m.checksumFailed(rec):
		m.converse.metrics.incMismatchCount()
		err = ErrChecksumMismatch
	default:
		m.converse.metrics.incMismatchCount()
		err = ErrMismatch
	}

	if !continueOnFailure {
		ds.PurgeStreamBuffers()
		m.converse.metrics.incPurgeCount()
	}

	return rec, err
}

// checksumFailed reports whether the only mismatching bytes are checksum slots.
func (m *Message) checksumFailed(rec *MessageRecord) bool {
	pos := 0
	csMismatch := false
	for _, el := range m.elements {
		n := 0
		isChecksum := false
		switch e := el.(type) {
		case *Literal:
			n = len(e.raw)
		case *UseVariable:
			if e.isDynamic() {
				return false
			}
			n = e.wireLen()
			isChecksum = e.checksum != ChecksumNone
		}
		for i := pos; i < pos+n && i < len(rec.Status); i++ {
			if rec.Status[i] != StatusMismatch {
				continue
			}
			if !isChecksum {
				return false
			}
			csMismatch = true
		}
		pos += n
	}

	return csMismatch
}

// checksumBytes computes a checksum slot's wire bytes.
func (c *Converse) checksumBytes(kind ChecksumKind, parts [][]byte) []byte {
	sum := c.cfg.checksum.CheckSum16(parts)
	if kind == Checksum8 {
		return []byte{checksum.Low8(sum)}
	}

	out := make([]byte, 2)
	_ = c.cfg.checksumEndian16.PutUint16(out, 0, sum)

	return out
}
