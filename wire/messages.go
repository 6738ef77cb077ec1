package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/emptyOVO/lyricmr-go/countmap"
	"github.com/emptyOVO/lyricmr-go/partition"
	"github.com/emptyOVO/lyricmr-go/token"
)

// Hello introduces a worker to the coordinator. The ID is a fresh UUID per
// worker process; ranks are assigned in connection order.
type Hello struct {
	ID string
}

func (*Hello) Kind() Kind { return KindHello }

func (m *Hello) append(b *bytes.Buffer) { putString(b, m.ID) }

func (m *Hello) decode(b []byte) error {
	r := &reader{b: b}
	m.ID = r.string()
	return r.finish()
}

// Assign is the coordinator's reply to Hello: everything a participant needs
// to process its share. It stands in for the broadcast of shared metadata in
// the original message-passing design.
type Assign struct {
	Rank         int
	Participants int
	Mode         partition.Mode
	Input        string // dataset path, used in range mode
	Range        partition.ByteRange
	Token        token.Config
	MaxRecords   int64 // 0 = unlimited; test runs cap ingestion
	Sentiment    bool  // whether to build and classify a lyric batch
	Script       string
}

func (*Assign) Kind() Kind { return KindAssign }

func (m *Assign) append(b *bytes.Buffer) {
	putU32(b, uint32(m.Rank))
	putU32(b, uint32(m.Participants))
	putU32(b, uint32(m.Mode))
	putString(b, m.Input)
	putI64(b, m.Range.Start)
	putI64(b, m.Range.End)
	putBool(b, m.Token.Apostrophe)
	putU32(b, uint32(m.Token.MinLen))
	putI64(b, m.MaxRecords)
	putBool(b, m.Sentiment)
	putString(b, m.Script)
}

func (m *Assign) decode(b []byte) error {
	r := &reader{b: b}
	m.Rank = int(r.u32())
	m.Participants = int(r.u32())
	m.Mode = partition.Mode(r.u32())
	m.Input = r.string()
	m.Range.Start = r.i64()
	m.Range.End = r.i64()
	m.Token.Apostrophe = r.bool()
	m.Token.MinLen = int(r.u32())
	m.MaxRecords = r.i64()
	m.Sentiment = r.bool()
	m.Script = r.string()
	return r.finish()
}

// Record carries one push-mode record to its owner. Only the fields the
// aggregation consumes travel.
type Record struct {
	Artist string
	Text   string
}

func (*Record) Kind() Kind { return KindRecord }

func (m *Record) append(b *bytes.Buffer) {
	putString(b, m.Artist)
	putString(b, m.Text)
}

func (m *Record) decode(b []byte) error {
	r := &reader{b: b}
	m.Artist = r.string()
	m.Text = r.string()
	return r.finish()
}

// EndRecords terminates the push-mode record stream to one worker.
type EndRecords struct{}

func (*EndRecords) Kind() Kind           { return KindEndRecords }
func (*EndRecords) append(*bytes.Buffer) {}
func (*EndRecords) decode(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("%d trailing bytes", len(b))
	}
	return nil
}

// Table names which global map a Counts block merges into. Tagging keeps
// word and artist transmissions unambiguous on one channel.
type Table byte

const (
	TableWord Table = iota + 1
	TableArtist
)

func (t Table) String() string {
	switch t {
	case TableWord:
		return "word"
	case TableArtist:
		return "artist"
	}
	return fmt.Sprintf("table(%d)", byte(t))
}

// Counts is one block of serialized (key, count) pairs. The entry count is
// part of the frame, so the receiver never relies on end-of-stream. A
// participant may split one map over several blocks: merging is additive, so
// chunking cannot change the result.
type Counts struct {
	Table   Table
	Entries []countmap.Entry
}

func (*Counts) Kind() Kind { return KindCounts }

func (m *Counts) append(b *bytes.Buffer) {
	b.WriteByte(byte(m.Table))
	putU32(b, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		putString(b, e.Key)
		putI64(b, e.Count)
	}
}

func (m *Counts) decode(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("missing table tag")
	}
	m.Table = Table(b[0])
	if m.Table != TableWord && m.Table != TableArtist {
		return fmt.Errorf("unknown table tag %d", b[0])
	}
	r := &reader{b: b[1:]}
	n := r.u32()
	if r.err == nil {
		// An entry occupies at least 12 bytes on the wire (length-prefixed
		// key plus count), so a larger claimed count is a corrupt header,
		// not something to size an allocation from.
		if int64(n) > int64(len(r.b)/12) {
			return fmt.Errorf("entry count %d exceeds %d-byte body", n, len(r.b))
		}
		m.Entries = make([]countmap.Entry, 0, n)
		for i := uint32(0); i < n; i++ {
			key := r.string()
			count := r.i64()
			if r.err != nil {
				break
			}
			m.Entries = append(m.Entries, countmap.Entry{Key: key, Count: count})
		}
	}
	return r.finish()
}

// Stats carries a participant's scalar totals: records and words processed,
// malformed records skipped, and the opaque sentiment counts returned by the
// external classifier for its batch.
type Stats struct {
	Songs    int64
	Words    int64
	Skipped  int64
	Positive int64
	Neutral  int64
	Negative int64
}

func (*Stats) Kind() Kind { return KindStats }

func (m *Stats) append(b *bytes.Buffer) {
	putI64(b, m.Songs)
	putI64(b, m.Words)
	putI64(b, m.Skipped)
	putI64(b, m.Positive)
	putI64(b, m.Neutral)
	putI64(b, m.Negative)
}

func (m *Stats) decode(b []byte) error {
	r := &reader{b: b}
	m.Songs = r.i64()
	m.Words = r.i64()
	m.Skipped = r.i64()
	m.Positive = r.i64()
	m.Neutral = r.i64()
	m.Negative = r.i64()
	return r.finish()
}

// Timing carries a participant's phase durations in seconds; the coordinator
// reduces them to min/max/avg for the metrics report.
type Timing struct {
	ProcessSeconds  float64
	ClassifySeconds float64
	TotalSeconds    float64
}

func (*Timing) Kind() Kind { return KindTiming }

func (m *Timing) append(b *bytes.Buffer) {
	putF64(b, m.ProcessSeconds)
	putF64(b, m.ClassifySeconds)
	putF64(b, m.TotalSeconds)
}

func (m *Timing) decode(b []byte) error {
	r := &reader{b: b}
	m.ProcessSeconds = r.f64()
	m.ClassifySeconds = r.f64()
	m.TotalSeconds = r.f64()
	return r.finish()
}

// Done marks the end of a participant's whole contribution, so the
// coordinator never blocks on a source that has nothing left to say.
type Done struct{}

func (*Done) Kind() Kind           { return KindDone }
func (*Done) append(*bytes.Buffer) {}
func (*Done) decode(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("%d trailing bytes", len(b))
	}
	return nil
}

// SendCounts ships all of m's entries on c in blocks of at most chunk
// entries, so a large partial map never builds one giant frame.
func SendCounts(c *Conn, table Table, m *countmap.Map, chunk int) error {
	if chunk <= 0 {
		chunk = 8192
	}
	entries := m.Entries()
	for len(entries) > 0 {
		n := chunk
		if n > len(entries) {
			n = len(entries)
		}
		if err := c.Send(&Counts{Table: table, Entries: entries[:n]}); err != nil {
			return err
		}
		entries = entries[n:]
	}
	return nil
}

func putBool(b *bytes.Buffer, v bool) {
	if v {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	if len(r.b) < 1 {
		r.err = io.ErrUnexpectedEOF
		return false
	}
	v := r.b[0] != 0
	r.b = r.b[1:]
	return v
}
