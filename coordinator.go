package lyricmr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emptyOVO/lyricmr-go/countmap"
	"github.com/emptyOVO/lyricmr-go/partition"
	"github.com/emptyOVO/lyricmr-go/rank"
	"github.com/emptyOVO/lyricmr-go/record"
	"github.com/emptyOVO/lyricmr-go/report"
	"github.com/emptyOVO/lyricmr-go/sentiment"
	"github.com/emptyOVO/lyricmr-go/store"
	"github.com/emptyOVO/lyricmr-go/wire"
)

// Summary is what a run yields beyond the files it writes.
type Summary struct {
	Participants int
	Mode         partition.Mode
	Songs        int64
	Words        int64
	Skipped      int64
	Sentiment    sentiment.Totals
	TopWords     []rank.Entry
	TopArtists   []rank.Entry
	Process      report.Stat
	Classify     report.Stat
	Total        report.Stat
	RunID        int64 // 0 unless a run store is configured
}

// RunCoordinator listens on cfg.Listen, waits for cfg.Workers connections,
// and drives a full run over TCP.
func RunCoordinator(ctx context.Context, cfg Config) (*Summary, error) {
	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	defer ln.Close()
	log.Infof("[Coordinator] listening on %s, waiting for %d workers", ln.Addr(), cfg.Workers)

	conns := make([]*wire.Conn, 0, cfg.Workers)
	raw := make([]net.Conn, 0, cfg.Workers)
	defer func() {
		for _, c := range raw {
			c.Close()
		}
	}()
	for len(conns) < cfg.Workers {
		nc, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
		raw = append(raw, nc)
		conns = append(conns, wire.NewConn(nc))
		log.Infof("[Coordinator] worker %d/%d connected from %s", len(conns), cfg.Workers, nc.RemoteAddr())
	}
	return runCoordinator(ctx, cfg, conns)
}

// runCoordinator drives one run over already-established connections. Ranks
// follow connection order: the coordinator is rank 0, conns[i] is rank i+1.
func runCoordinator(ctx context.Context, cfg Config, conns []*wire.Conn) (*Summary, error) {
	n := len(conns) + 1
	mode, err := partition.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	classify := cfg.Sentiment.Script != ""

	for i, c := range conns {
		msg, err := c.Receive()
		if err != nil {
			return nil, fmt.Errorf("rank %d handshake: %w", i+1, err)
		}
		hello, ok := msg.(*wire.Hello)
		if !ok {
			return nil, fmt.Errorf("rank %d: expected hello, got %T", i+1, msg)
		}
		log.Infof("[Coordinator] rank %d is worker %s", i+1, hello.ID)
	}

	var ranges []partition.ByteRange
	if mode == partition.ModeRange {
		dataStart, fileSize, err := datasetMeta(cfg.Input)
		if err != nil {
			return nil, err
		}
		ranges = partition.SplitRanges(dataStart, fileSize, n)
		if err := partition.AlignRanges(cfg.Input, ranges); err != nil {
			return nil, err
		}
	}
	for i, c := range conns {
		assign := &wire.Assign{
			Rank:         i + 1,
			Participants: n,
			Mode:         mode,
			Input:        cfg.Input,
			Token:        cfg.Token,
			MaxRecords:   cfg.MaxRecords,
			Sentiment:    classify,
			Script:       cfg.Sentiment.Script,
		}
		if mode == partition.ModeRange {
			assign.Range = ranges[i+1]
		}
		if err := c.Send(assign); err != nil {
			return nil, fmt.Errorf("assign rank %d: %w", i+1, err)
		}
	}

	in, err := newIngestor(cfg.Token, classify)
	if err != nil {
		return nil, err
	}
	defer in.close()

	runStart := time.Now()
	var skipped int64
	switch mode {
	case partition.ModePush:
		skipped, err = dispatchPush(cfg, conns, in)
	case partition.ModeRange:
		skipped, err = processRange(in, cfg.Input, ranges[0], cfg.MaxRecords)
	}
	if err != nil {
		return nil, err
	}
	processSeconds := time.Since(runStart).Seconds()
	log.Infof("[Coordinator] local share done: %d songs, %d words, %d skipped in %.3fs",
		in.songs, in.wordTotal, skipped, processSeconds)

	totals, classifySeconds := in.classify(ctx, cfg.Sentiment.Script)

	words := in.words
	artists := in.artists
	songs := in.songs
	wordTotal := in.wordTotal
	timings := make([]report.Timing, 0, n)
	for i, c := range conns {
		t, err := drainWorker(c, i+1, words, artists)
		if err != nil {
			return nil, err
		}
		songs += t.stats.Songs
		wordTotal += t.stats.Words
		skipped += t.stats.Skipped
		totals.Add(sentiment.Totals{Positive: t.stats.Positive, Neutral: t.stats.Neutral, Negative: t.stats.Negative})
		timings = append(timings, report.Timing{
			Rank:            i + 1,
			ProcessSeconds:  t.timing.ProcessSeconds,
			ClassifySeconds: t.timing.ClassifySeconds,
			TotalSeconds:    t.timing.TotalSeconds,
		})
		log.Infof("[Coordinator] merged rank %d: %d songs, %d words", i+1, t.stats.Songs, t.stats.Words)
	}
	timings = append(timings, report.Timing{
		Rank:            0,
		ProcessSeconds:  processSeconds,
		ClassifySeconds: classifySeconds,
		TotalSeconds:    time.Since(runStart).Seconds(),
	})

	summary := &Summary{
		Participants: n,
		Mode:         mode,
		Songs:        songs,
		Words:        wordTotal,
		Skipped:      skipped,
		Sentiment:    totals,
		TopWords:     rank.Top(words, cfg.WordLimit),
		TopArtists:   rank.Top(artists, cfg.ArtistLimit),
	}
	summary.Process, summary.Classify, summary.Total = report.Reduce(timings)

	if err := writeOutputs(cfg, summary); err != nil {
		return nil, err
	}
	if cfg.StorePath != "" {
		if err := saveRun(ctx, cfg, summary); err != nil {
			return nil, err
		}
	}
	logSummary(summary)
	return summary, nil
}

// workerResult collects the non-count messages of one worker's merge stream.
type workerResult struct {
	stats  wire.Stats
	timing wire.Timing
}

// drainWorker folds one worker's result stream into the global maps until
// Done. Any out-of-protocol message is fatal.
func drainWorker(c *wire.Conn, rank int, words, artists *countmap.Map) (workerResult, error) {
	var res workerResult
	for {
		msg, err := c.Receive()
		if err != nil {
			return res, fmt.Errorf("rank %d results: %w", rank, err)
		}
		switch m := msg.(type) {
		case *wire.Counts:
			switch m.Table {
			case wire.TableWord:
				words.MergeEntries(m.Entries)
			case wire.TableArtist:
				artists.MergeEntries(m.Entries)
			default:
				return res, fmt.Errorf("rank %d: counts for unknown %s", rank, m.Table)
			}
		case *wire.Stats:
			res.stats = *m
		case *wire.Timing:
			res.timing = *m
		case *wire.Done:
			return res, nil
		default:
			return res, fmt.Errorf("rank %d: unexpected %T during merge", rank, msg)
		}
	}
}

// dispatchPush streams the dataset record by record, keeping every n-th
// record local and pushing the rest to their owners.
func dispatchPush(cfg Config, conns []*wire.Conn, in *ingestor) (int64, error) {
	n := len(conns) + 1
	f, err := os.Open(cfg.Input)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", cfg.Input, err)
	}
	defer f.Close()
	rdr := record.NewReader(f)
	if err := rdr.SkipHeader(); err != nil {
		return 0, fmt.Errorf("skip header: %w", err)
	}
	var index int64
	for {
		if cfg.MaxRecords > 0 && index >= cfg.MaxRecords {
			break
		}
		rec, err := rdr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rdr.Skipped(), err
		}
		target := partition.TargetRank(index, n)
		if target == 0 {
			if err := in.add(rec.Artist, rec.Text); err != nil {
				return rdr.Skipped(), err
			}
		} else {
			if err := conns[target-1].Send(&wire.Record{Artist: rec.Artist, Text: rec.Text}); err != nil {
				return rdr.Skipped(), fmt.Errorf("push to rank %d: %w", target, err)
			}
		}
		index++
	}
	for i, c := range conns {
		if err := c.Send(&wire.EndRecords{}); err != nil {
			return rdr.Skipped(), fmt.Errorf("end stream to rank %d: %w", i+1, err)
		}
	}
	log.Infof("[Coordinator] pushed %d records to %d participants", index, n)
	return rdr.Skipped(), nil
}

// datasetMeta reports where the data starts (past the header line) and the
// file size, the two numbers range splitting needs.
func datasetMeta(path string) (dataStart, fileSize int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	rdr := record.NewReader(f)
	if err := rdr.SkipHeader(); err != nil {
		return 0, 0, fmt.Errorf("skip header: %w", err)
	}
	return rdr.InputOffset(), fi.Size(), nil
}

func writeOutputs(cfg Config, s *Summary) error {
	if err := report.EnsureDir(cfg.OutputDir); err != nil {
		return err
	}
	wordsPath, artistsPath, metricsPath := report.Paths(cfg.OutputDir)
	if err := report.WriteCountsCSV(wordsPath, "word", s.TopWords); err != nil {
		return err
	}
	if err := report.WriteCountsCSV(artistsPath, "artist", s.TopArtists); err != nil {
		return err
	}
	m := report.Metrics{
		Processes:         s.Participants,
		TotalSongs:        s.Songs,
		TotalWords:        s.Words,
		SkippedRecords:    s.Skipped,
		SentimentPositive: s.Sentiment.Positive,
		SentimentNeutral:  s.Sentiment.Neutral,
		SentimentNegative: s.Sentiment.Negative,
		ProcessTime:       s.Process,
		ClassifyTime:      s.Classify,
		TotalTime:         s.Total,
	}
	if err := report.WriteMetricsJSON(metricsPath, m); err != nil {
		return err
	}
	log.Infof("[Coordinator] wrote %s, %s, %s", wordsPath, artistsPath, metricsPath)
	return nil
}

func saveRun(ctx context.Context, cfg Config, s *Summary) error {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()
	id, err := st.SaveRun(ctx, store.RunInfo{
		StartedAt:    time.Now(),
		InputPath:    cfg.Input,
		Mode:         s.Mode.String(),
		Participants: s.Participants,
		TotalSongs:   s.Songs,
		TotalWords:   s.Words,
		Skipped:      s.Skipped,
	}, s.TopWords, s.TopArtists)
	if err != nil {
		return err
	}
	s.RunID = id
	log.Infof("[Coordinator] saved run %d to %s", id, cfg.StorePath)
	return nil
}

func logSummary(s *Summary) {
	log.Infof("[Coordinator] %d songs, %d words, %d skipped across %d participants (%s mode)",
		s.Songs, s.Words, s.Skipped, s.Participants, s.Mode)
	preview := func(label string, entries []rank.Entry) {
		if len(entries) > 10 {
			entries = entries[:10]
		}
		for _, e := range entries {
			log.Infof("[Coordinator] %s #%d %-20s %d", label, e.Rank, e.Key, e.Count)
		}
	}
	preview("word", s.TopWords)
	preview("artist", s.TopArtists)
	log.Infof("[Coordinator] process %.3fs avg, total %.3fs avg across participants",
		s.Process.AvgSeconds, s.Total.AvgSeconds)
}
