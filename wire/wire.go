// Package wire is the point-to-point message protocol between workers and
// the coordinator. Messages travel as length-prefixed frames:
//
//	| length (8 bytes, big endian) | kind (1 byte) | body (length-1 bytes) |
//
// The transport only has to deliver bytes in order per connection; framing,
// typing and termination signaling all live here so a receiver never depends
// on transport end-of-stream to know a map transmission is complete.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Kind tags every frame.
type Kind byte

const (
	KindHello Kind = iota + 1
	KindAssign
	KindRecord
	KindEndRecords
	KindCounts
	KindStats
	KindTiming
	KindDone
)

// maxFrame bounds a declared frame length so a corrupted prefix fails fast
// instead of exhausting memory.
const maxFrame = 256 << 20

// Message is anything that can cross a participant link.
type Message interface {
	Kind() Kind
	append(b *bytes.Buffer)
	decode(b []byte) error
}

// Conn frames messages over any ordered byte stream (TCP or net.Pipe).
type Conn struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewConn wraps rw.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{r: bufio.NewReader(rw), w: bufio.NewWriter(rw)}
}

// Send frames and flushes one message.
func (c *Conn) Send(m Message) error {
	var body bytes.Buffer
	body.WriteByte(byte(m.Kind()))
	m.append(&body)
	if err := binary.Write(c.w, binary.BigEndian, uint64(body.Len())); err != nil {
		return err
	}
	if _, err := c.w.Write(body.Bytes()); err != nil {
		return err
	}
	return c.w.Flush()
}

// Receive reads and decodes the next message. Unknown kinds and undecodable
// bodies are protocol errors; the caller is expected to treat them as fatal.
func (c *Conn) Receive() (Message, error) {
	var length uint64
	if err := binary.Read(c.r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 || length > maxFrame {
		return nil, fmt.Errorf("wire: invalid frame length %d", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return nil, err
	}
	var m Message
	switch Kind(body[0]) {
	case KindHello:
		m = &Hello{}
	case KindAssign:
		m = &Assign{}
	case KindRecord:
		m = &Record{}
	case KindEndRecords:
		m = &EndRecords{}
	case KindCounts:
		m = &Counts{}
	case KindStats:
		m = &Stats{}
	case KindTiming:
		m = &Timing{}
	case KindDone:
		m = &Done{}
	default:
		return nil, fmt.Errorf("wire: unknown message kind %d", body[0])
	}
	if err := m.decode(body[1:]); err != nil {
		return nil, fmt.Errorf("wire: decode %T: %w", m, err)
	}
	return m, nil
}

// --- primitive encoding helpers ---

func putU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func putU64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

func putI64(b *bytes.Buffer, v int64)   { putU64(b, uint64(v)) }
func putF64(b *bytes.Buffer, v float64) { putU64(b, math.Float64bits(v)) }

func putString(b *bytes.Buffer, s string) {
	putU32(b, uint32(len(s)))
	b.WriteString(s)
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.b) < 4 {
		r.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.BigEndian.Uint32(r.b)
	r.b = r.b[4:]
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.b) < 8 {
		r.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.BigEndian.Uint64(r.b)
	r.b = r.b[8:]
	return v
}

func (r *reader) i64() int64   { return int64(r.u64()) }
func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

func (r *reader) string() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if uint32(len(r.b)) < n {
		r.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(r.b[:n])
	r.b = r.b[n:]
	return s
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if len(r.b) != 0 {
		return fmt.Errorf("%d trailing bytes", len(r.b))
	}
	return nil
}
