package wire

import (
	"fmt"
	"net"
	"reflect"
	"testing"

	"github.com/emptyOVO/lyricmr-go/countmap"
	"github.com/emptyOVO/lyricmr-go/partition"
	"github.com/emptyOVO/lyricmr-go/token"
)

// pipePair returns two connected Conns and handles cleanup.
func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewConn(a), NewConn(b)
}

// roundTrip sends m on one end of a pipe and returns what the other decodes.
func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	sender, receiver := pipePair(t)
	errCh := make(chan error, 1)
	go func() { errCh <- sender.Send(m) }()
	got, err := receiver.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	return got
}

func TestMessageRoundTrips(t *testing.T) {
	msgs := []Message{
		&Hello{ID: "9f0c6dd2-workers-uuid"},
		&Assign{
			Rank:         2,
			Participants: 4,
			Mode:         partition.ModeRange,
			Input:        "/data/songs.csv",
			Range:        partition.ByteRange{Start: 1024, End: 2048},
			Token:        token.Config{Apostrophe: true, MinLen: 3},
			MaxRecords:   500,
			Sentiment:    true,
			Script:       "scripts/classify.py",
		},
		&Record{Artist: "ABBA", Text: "he said \"hi\",\nthen left"},
		&EndRecords{},
		&Counts{Table: TableArtist, Entries: []countmap.Entry{
			{Key: "queen", Count: 12},
			{Key: "key,with\nnoise", Count: 3},
		}},
		&Stats{Songs: 7, Words: 1999, Skipped: 2, Positive: 3, Neutral: 2, Negative: 2},
		&Timing{ProcessSeconds: 1.25, ClassifySeconds: 0.5, TotalSeconds: 2.5},
		&Done{},
	}
	for _, m := range msgs {
		got := roundTrip(t, m)
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip of %T:\n got %+v\nwant %+v", m, got, m)
		}
	}
}

func TestFIFOOrderPreserved(t *testing.T) {
	sender, receiver := pipePair(t)
	const n = 50
	go func() {
		for i := 0; i < n; i++ {
			sender.Send(&Record{Artist: fmt.Sprintf("a%d", i), Text: "t"})
		}
		sender.Send(&EndRecords{})
	}()
	for i := 0; i < n; i++ {
		m, err := receiver.Receive()
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		rec, ok := m.(*Record)
		if !ok || rec.Artist != fmt.Sprintf("a%d", i) {
			t.Fatalf("message %d out of order: %+v", i, m)
		}
	}
	if m, err := receiver.Receive(); err != nil {
		t.Fatalf("Receive end: %v", err)
	} else if _, ok := m.(*EndRecords); !ok {
		t.Fatalf("expected EndRecords, got %T", m)
	}
}

func TestChunkedCountsMergeLikeOneMap(t *testing.T) {
	src := countmap.New(0)
	for i := 0; i < 1000; i++ {
		src.Increment(fmt.Sprintf("w%03d", i%217), 1)
	}

	sender, receiver := pipePair(t)
	errCh := make(chan error, 1)
	go func() {
		if err := SendCounts(sender, TableWord, src, 100); err != nil {
			errCh <- err
			return
		}
		errCh <- sender.Send(&Done{})
	}()

	dst := countmap.New(0)
	blocks := 0
	for {
		m, err := receiver.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if _, done := m.(*Done); done {
			break
		}
		c, ok := m.(*Counts)
		if !ok {
			t.Fatalf("unexpected message %T", m)
		}
		if c.Table != TableWord {
			t.Fatalf("wrong table tag %v", c.Table)
		}
		dst.MergeEntries(c.Entries)
		blocks++
	}
	if err := <-errCh; err != nil {
		t.Fatalf("send side: %v", err)
	}
	if blocks < 2 {
		t.Fatalf("expected chunking into multiple blocks, got %d", blocks)
	}
	if dst.Len() != src.Len() {
		t.Fatalf("merged %d keys, want %d", dst.Len(), src.Len())
	}
	for _, e := range src.Entries() {
		if c, _ := dst.Get(e.Key); c != e.Count {
			t.Fatalf("key %q merged to %d, want %d", e.Key, c, e.Count)
		}
	}
}

func TestUndecodableFrameIsError(t *testing.T) {
	sender, receiver := pipePair(t)
	go sender.Send(&Hello{ID: "x"})
	// receive as raw bytes is not possible through Conn, so instead send a
	// valid frame and then corrupt at the kind level via a custom message
	if _, err := receiver.Receive(); err != nil {
		t.Fatalf("valid frame failed: %v", err)
	}

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go func() {
		// frame declaring kind 0xEE, no body
		a.Write([]byte{0, 0, 0, 0, 0, 0, 0, 1, 0xEE})
	}()
	if _, err := NewConn(b).Receive(); err == nil {
		t.Fatal("unknown kind did not fail")
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go func() {
		// declared length far beyond maxFrame
		a.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	}()
	if _, err := NewConn(b).Receive(); err == nil {
		t.Fatal("oversized frame did not fail")
	}
}

func TestCountsRejectsOverdeclaredEntryCount(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go func() {
		// counts frame for the word table claiming 2^32-1 entries with an
		// empty body; decoding must fail without sizing an allocation to
		// the claimed count
		a.Write([]byte{0, 0, 0, 0, 0, 0, 0, 6, byte(KindCounts), byte(TableWord), 0xFF, 0xFF, 0xFF, 0xFF})
	}()
	if _, err := NewConn(b).Receive(); err == nil {
		t.Fatal("overdeclared entry count did not fail")
	}
}
