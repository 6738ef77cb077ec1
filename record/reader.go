// Package record parses the four-column delimited dataset
// (artist, song, link, text) one logical record at a time. A record may span
// several physical lines when a quoted field embeds raw line breaks.
package record

import (
	"bufio"
	"io"
	"strings"
)

// Record is one logical row of the dataset. Only Artist and Text feed the
// aggregation; Song and Link ride along for callers that rewrite records.
type Record struct {
	Artist string
	Song   string
	Link   string
	Text   string
}

const fieldsPerRecord = 4

// Reader pulls records off a byte stream. It tracks the exact number of
// bytes consumed so range-mode partitioning can enforce byte bounds, the way
// encoding/csv exposes InputOffset.
type Reader struct {
	br             *bufio.Reader
	offset         int64
	preserveQuotes bool
	skipped        int64
}

// NewReader wraps r. The stream is expected to be positioned at the start of
// a physical line (use SkipHeader or DiscardPartial first otherwise).
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// SetPreserveQuotes switches field extraction to the verbatim form: fields
// keep their surrounding quotes and doubled-quote escapes byte for byte.
// Needed when a record is rewritten for a second parsing pass.
func (r *Reader) SetPreserveQuotes(on bool) { r.preserveQuotes = on }

// SetOffset seeds the consumed-byte counter when the underlying stream was
// seeked before wrapping.
func (r *Reader) SetOffset(n int64) { r.offset = n }

// InputOffset reports the byte offset just past the last consumed byte.
func (r *Reader) InputOffset() int64 { return r.offset }

// Skipped reports how many malformed records were dropped so far.
func (r *Reader) Skipped() int64 { return r.skipped }

func (r *Reader) readByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err == nil {
		r.offset++
	}
	return b, err
}

func (r *Reader) peekByte() (byte, bool) {
	p, err := r.br.Peek(1)
	if err != nil || len(p) == 0 {
		return 0, false
	}
	return p[0], true
}

// SkipHeader consumes one physical line (the column header). The offset
// after the call is the start of record data.
func (r *Reader) SkipHeader() error { return r.DiscardPartial() }

// DiscardPartial reads up to and including the next line break. A line break
// inside a quoted field stops it too, so it only reaches a record boundary
// when the discarded bytes hold no quoted breaks; the header line never does.
func (r *Reader) DiscardPartial() error {
	for {
		b, err := r.readByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b == '\n' {
			return nil
		}
	}
}

// Next returns the next well-formed record, silently skipping rows that do
// not yield exactly four fields (wrong column count, unterminated quote at
// end of stream). io.EOF signals a clean end of input.
func (r *Reader) Next() (Record, error) {
	for {
		rec, ok, err := r.ReadOne()
		if err != nil {
			return Record{}, err
		}
		if ok {
			return rec, nil
		}
	}
}

// ReadOne consumes exactly one logical record. ok reports whether it was
// well-formed; malformed records are counted in Skipped. Range-mode
// partitioning uses this instead of Next so byte bounds are re-checked after
// every record, valid or not.
func (r *Reader) ReadOne() (Record, bool, error) {
	fields, err := r.parseOne()
	if err != nil {
		return Record{}, false, err
	}
	if len(fields) != fieldsPerRecord {
		r.skipped++
		return Record{}, false, nil
	}
	return Record{
		Artist: fields[0],
		Song:   fields[1],
		Link:   fields[2],
		Text:   fields[3],
	}, true, nil
}

// parseOne consumes one logical record and returns its extracted fields.
// A nil, non-error return never happens: either fields or io.EOF. A record
// left unterminated inside quotes at EOF is returned with a sentinel field
// count of zero so Next treats it as malformed.
func (r *Reader) parseOne() ([]string, error) {
	var (
		fields   []string
		clean    strings.Builder // unescaped logical value
		raw      strings.Builder // original bytes, used for preserve-quotes
		quoted   bool
		consumed bool // any byte consumed for this record
	)

	endField := func() {
		if r.preserveQuotes {
			fields = append(fields, raw.String())
		} else {
			fields = append(fields, strings.TrimSpace(clean.String()))
		}
		clean.Reset()
		raw.Reset()
	}

	for {
		b, err := r.readByte()
		if err == io.EOF {
			if !consumed {
				return nil, io.EOF
			}
			if quoted {
				// unterminated quote: data-quality reject, not fatal
				return nil, nil
			}
			endField()
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
		consumed = true

		switch {
		case b == '"' && !quoted:
			quoted = true
			raw.WriteByte(b)
		case b == '"' && quoted:
			if nxt, ok := r.peekByte(); ok && nxt == '"' {
				// doubled quote is a literal quote inside the field
				r.readByte()
				clean.WriteByte('"')
				raw.WriteString(`""`)
			} else {
				quoted = false
				raw.WriteByte(b)
			}
		case b == ',' && !quoted:
			endField()
		case b == '\n' && !quoted:
			endField()
			return fields, nil
		case b == '\r':
			if quoted {
				// normalized away; a following LF is kept literally
				raw.WriteByte(b)
			}
			// unquoted CR is a no-op: the LF that follows (if any)
			// terminates the record on its own
		default:
			clean.WriteByte(b)
			raw.WriteByte(b)
		}
	}
}
