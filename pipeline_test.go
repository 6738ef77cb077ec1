package lyricmr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/emptyOVO/lyricmr-go/rank"
	"github.com/emptyOVO/lyricmr-go/record"
	"github.com/emptyOVO/lyricmr-go/report"
	"github.com/emptyOVO/lyricmr-go/store"
	"github.com/emptyOVO/lyricmr-go/token"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	rows := `artist,song,link,text
ABBA,Waterloo,/a/waterloo.html,"Waterloo, I was defeated you won the war"
Queen,Bohemian Rhapsody,/q/bohemian.html,"Is this the real life?
Is this just fantasy?"
ABBA,SOS,/a/sos.html,where are those happy days
broken,row,only-three-fields
Queen,Don't Stop Me Now,/q/dontstop.html,"don't stop me now don't stop me"
Prince,Kiss,/p/kiss.html,"she said ""kiss me"" again and again"
ABBA,Money,/a/money.html,money money money must be funny
`
	path := filepath.Join(t.TempDir(), "songs.csv")
	if err := os.WriteFile(path, []byte(rows), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

// sequentialCounts replays the dataset single-threaded with the same
// tokenizer, giving the ground truth any run must reproduce.
func sequentialCounts(t *testing.T, path string, tok token.Config) (words, artists map[string]int64, songs, wordTotal, skipped int64) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	defer f.Close()
	rdr := record.NewReader(f)
	if err := rdr.SkipHeader(); err != nil {
		t.Fatalf("skip header: %v", err)
	}
	words = map[string]int64{}
	artists = map[string]int64{}
	for {
		rec, err := rdr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read record: %v", err)
		}
		if rec.Artist != "" {
			artists[rec.Artist]++
		}
		for _, w := range token.Split(rec.Text, tok) {
			words[w]++
			wordTotal++
		}
		songs++
	}
	return words, artists, songs, wordTotal, rdr.Skipped()
}

func entriesToMap(entries []rank.Entry) map[string]int64 {
	m := make(map[string]int64, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Count
	}
	return m
}

func checkSummary(t *testing.T, s *Summary, path string, tok token.Config) {
	t.Helper()
	words, artists, songs, wordTotal, skipped := sequentialCounts(t, path, tok)
	if s.Songs != songs {
		t.Fatalf("songs = %d, sequential run counted %d", s.Songs, songs)
	}
	if s.Words != wordTotal {
		t.Fatalf("words = %d, sequential run counted %d", s.Words, wordTotal)
	}
	if s.Skipped != skipped {
		t.Fatalf("skipped = %d, sequential run counted %d", s.Skipped, skipped)
	}
	if got := entriesToMap(s.TopWords); !reflect.DeepEqual(got, words) {
		t.Fatalf("word counts diverge from sequential run:\n got %v\nwant %v", got, words)
	}
	if got := entriesToMap(s.TopArtists); !reflect.DeepEqual(got, artists) {
		t.Fatalf("artist counts diverge from sequential run:\n got %v\nwant %v", got, artists)
	}
	for i := 1; i < len(s.TopWords); i++ {
		prev, cur := s.TopWords[i-1], s.TopWords[i]
		if cur.Count > prev.Count || (cur.Count == prev.Count && cur.Key < prev.Key) {
			t.Fatalf("ranking out of order at %d: %v before %v", i, prev, cur)
		}
	}
}

func testConfig(t *testing.T, path, mode string, workers int) Config {
	t.Helper()
	return Config{
		Input:       path,
		OutputDir:   filepath.Join(t.TempDir(), "out"),
		Mode:        mode,
		Workers:     workers,
		WordLimit:   -1,
		ArtistLimit: -1,
		Token:       token.Config{Apostrophe: true},
	}
}

func TestRunLocalPush(t *testing.T) {
	path := writeDataset(t)
	cfg := testConfig(t, path, "push", 3)
	s, err := RunLocal(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if s.Participants != 4 {
		t.Fatalf("participants = %d, want 4", s.Participants)
	}
	checkSummary(t, s, path, cfg.Token)
}

func TestRunLocalRange(t *testing.T) {
	path := writeDataset(t)
	for workers := 0; workers <= 5; workers++ {
		cfg := testConfig(t, path, "range", workers)
		s, err := RunLocal(context.Background(), cfg)
		if err != nil {
			t.Fatalf("RunLocal with %d workers: %v", workers, err)
		}
		checkSummary(t, s, path, cfg.Token)
	}
}

func TestRunLocalRangeQuotedMultilineLyrics(t *testing.T) {
	var b strings.Builder
	b.WriteString("artist,song,link,text\n")
	for i := 0; i < 12; i++ {
		if i%3 == 1 {
			fmt.Fprintf(&b, "artist%d,song%d,/l/%d,\"verse one %d\nverse two %d\nverse three of song %d\"\n",
				i%4, i, i, i, i, i)
		} else {
			fmt.Fprintf(&b, "artist%d,song%d,/l/%d,plain lyric %d goes here\n", i%4, i, i, i)
		}
	}
	path := filepath.Join(t.TempDir(), "multiline.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	// across these worker counts many split boundaries land inside quoted
	// line breaks; every run must still match the sequential replay exactly
	for workers := 0; workers <= 7; workers++ {
		cfg := testConfig(t, path, "range", workers)
		s, err := RunLocal(context.Background(), cfg)
		if err != nil {
			t.Fatalf("RunLocal with %d workers: %v", workers, err)
		}
		if s.Skipped != 0 {
			t.Fatalf("workers=%d: %d phantom skips", workers, s.Skipped)
		}
		checkSummary(t, s, path, cfg.Token)
	}
}

func TestRunLocalPushReadsInputOnce(t *testing.T) {
	// a FIFO can only be consumed once; push mode must work on it since it
	// reads the dataset in a single sequential pass
	path := filepath.Join(t.TempDir(), "songs.fifo")
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		t.Skipf("mkfifo: %v", err)
	}
	go func() {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer f.Close()
		fmt.Fprint(f, "artist,song,link,text\n")
		for i := 0; i < 9; i++ {
			fmt.Fprintf(f, "artist%d,song%d,/l/%d,streamed lyric %d\n", i%3, i, i, i)
		}
	}()

	cfg := testConfig(t, path, "push", 2)
	done := make(chan struct{})
	var s *Summary
	var err error
	go func() {
		defer close(done)
		s, err = RunLocal(context.Background(), cfg)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("push run on a stream stalled")
	}
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if s.Songs != 9 {
		t.Fatalf("songs = %d, want 9", s.Songs)
	}
}

func TestRunLocalWritesReports(t *testing.T) {
	path := writeDataset(t)
	cfg := testConfig(t, path, "push", 2)
	if _, err := RunLocal(context.Background(), cfg); err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	for _, name := range []string{report.WordCountsFile, report.TopArtistsFile, report.MetricsFile} {
		p := filepath.Join(cfg.OutputDir, name)
		if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
			t.Fatalf("report %s missing or empty: %v", p, err)
		}
	}
}

func TestRunLocalMaxRecords(t *testing.T) {
	path := writeDataset(t)
	cfg := testConfig(t, path, "push", 2)
	cfg.MaxRecords = 3
	s, err := RunLocal(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if s.Songs != 3 {
		t.Fatalf("songs = %d, want capped at 3", s.Songs)
	}
}

func TestRunLocalSavesHistory(t *testing.T) {
	path := writeDataset(t)
	cfg := testConfig(t, path, "range", 2)
	cfg.StorePath = filepath.Join(t.TempDir(), "runs.db")
	s, err := RunLocal(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if s.RunID == 0 {
		t.Fatalf("expected a saved run id")
	}
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	got, err := st.TopEntries(context.Background(), s.RunID, "artist")
	if err != nil {
		t.Fatalf("load entries: %v", err)
	}
	if !reflect.DeepEqual(got, s.TopArtists) {
		t.Fatalf("stored artists = %v, want %v", got, s.TopArtists)
	}
}

func TestCoordinatorAndWorkersOverTCP(t *testing.T) {
	path := writeDataset(t)
	cfg := testConfig(t, path, "push", 2)
	cfg.Listen = freeAddr(t)

	done := make(chan struct{})
	var s *Summary
	var runErr error
	go func() {
		defer close(done)
		s, runErr = RunCoordinator(context.Background(), cfg)
	}()
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			// Workers retry briefly until the coordinator is listening.
			var err error
			for attempt := 0; attempt < 50; attempt++ {
				err = RunWorker(context.Background(), cfg.Listen)
				if err == nil {
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
			t.Errorf("worker never finished: %v", err)
		}()
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("coordinator did not finish")
	}
	if runErr != nil {
		t.Fatalf("RunCoordinator: %v", runErr)
	}
	checkSummary(t, s, path, cfg.Token)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
