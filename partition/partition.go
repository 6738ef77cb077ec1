// Package partition decides which records a participant owns. Two strategies
// cover the same contract (every valid record owned exactly once): push mode,
// where the coordinator streams records round-robin, and range mode, where
// each participant self-serves a contiguous byte range of the dataset.
package partition

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/emptyOVO/lyricmr-go/record"
)

// Mode selects the work-distribution strategy.
type Mode int

const (
	// ModePush streams records from the coordinator, record i to
	// participant i mod N. Ownership follows arrival order, not content.
	ModePush Mode = iota
	// ModeRange splits the dataset into N byte ranges; participants seek
	// and read their slice independently.
	ModeRange
)

func (m Mode) String() string {
	switch m {
	case ModePush:
		return "push"
	case ModeRange:
		return "range"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "push", "":
		return ModePush, nil
	case "range":
		return ModeRange, nil
	}
	return 0, fmt.Errorf("unknown partition mode %q (want push or range)", s)
}

// TargetRank is the push-mode owner of the i-th record among n participants.
func TargetRank(recordIndex int64, n int) int {
	return int(recordIndex % int64(n))
}

// ByteRange is one participant's slice of the dataset in range mode. Start
// and End are record boundaries once AlignRanges has run; OpenRange relies
// on that.
type ByteRange struct {
	Start int64
	End   int64
}

// SplitRanges divides [dataStart, fileSize) into n contiguous ranges of
// size (fileSize-dataStart)/n, handing the remainder one byte at a time to
// the first ranges.
func SplitRanges(dataStart, fileSize int64, n int) []ByteRange {
	total := fileSize - dataStart
	if total < 0 {
		total = 0
	}
	base := total / int64(n)
	rem := total % int64(n)

	ranges := make([]ByteRange, n)
	offset := dataStart
	for i := 0; i < n; i++ {
		size := base
		if int64(i) < rem {
			size++
		}
		ranges[i] = ByteRange{Start: offset, End: offset + size}
		offset += size
	}
	ranges[n-1].End = fileSize
	return ranges
}

// AlignRanges snaps every interior boundary up to the next true record start
// by walking the file once with the record parser, mutating ranges in place.
// Byte arithmetic alone cannot find a record boundary: a line break inside a
// quoted field is indistinguishable from a record terminator without the
// quote state accumulated from the start of the data, so resynchronizing at
// an arbitrary offset can land mid-record and corrupt everything after it.
// Boundaries that fall inside one long record collapse onto the same start,
// leaving the squeezed-out ranges empty.
func AlignRanges(path string, ranges []ByteRange) error {
	if len(ranges) < 2 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(ranges[0].Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to data start %d: %w", ranges[0].Start, err)
	}
	rdr := record.NewReader(f)
	rdr.SetOffset(ranges[0].Start)
	k := 1
	for k < len(ranges) {
		at := rdr.InputOffset()
		if at >= ranges[k].Start {
			ranges[k-1].End = at
			ranges[k].Start = at
			k++
			continue
		}
		if _, _, err := rdr.ReadOne(); err != nil {
			if errors.Is(err, io.EOF) {
				// Boundaries past the final record collapse to empty
				// tail ranges.
				for ; k < len(ranges); k++ {
					ranges[k-1].End = at
					ranges[k].Start = at
				}
				return nil
			}
			return fmt.Errorf("align range boundaries: %w", err)
		}
	}
	return nil
}

// RangeReader yields the records a participant owns in range mode: it seeks
// to the range start and reads complete records until one would begin at or
// past the range end. A record that straddles the end still belongs to this
// reader, since the next range starts at the following record.
type RangeReader struct {
	f   *os.File
	rdr *record.Reader
	rng ByteRange
}

// OpenRange opens path positioned at rng.Start, which must be a record
// boundary (SplitRanges output run through AlignRanges).
func OpenRange(path string, rng ByteRange) (*RangeReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek to range start %d: %w", rng.Start, err)
	}
	rdr := record.NewReader(f)
	rdr.SetOffset(rng.Start)
	return &RangeReader{f: f, rdr: rdr, rng: rng}, nil
}

// Next returns the next owned record, io.EOF when the range is exhausted.
func (rr *RangeReader) Next() (record.Record, error) {
	for {
		if rr.rdr.InputOffset() >= rr.rng.End {
			return record.Record{}, io.EOF
		}
		rec, ok, err := rr.rdr.ReadOne()
		if err != nil {
			return record.Record{}, err
		}
		if ok {
			return rec, nil
		}
	}
}

// Skipped reports malformed records dropped within this range.
func (rr *RangeReader) Skipped() int64 { return rr.rdr.Skipped() }

// Close releases the underlying file.
func (rr *RangeReader) Close() error { return rr.f.Close() }
