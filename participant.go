package lyricmr

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emptyOVO/lyricmr-go/countmap"
	"github.com/emptyOVO/lyricmr-go/partition"
	"github.com/emptyOVO/lyricmr-go/sentiment"
	"github.com/emptyOVO/lyricmr-go/token"
	"github.com/emptyOVO/lyricmr-go/wire"
)

// Capacity hints sized for the full dataset split a handful of ways.
const (
	wordMapHint   = 1 << 16
	artistMapHint = 1 << 13
)

// ingestor accumulates one participant's share of the dataset: per-word and
// per-artist counts, running totals, and optionally a classifier batch.
type ingestor struct {
	words   *countmap.Map
	artists *countmap.Map
	tok     token.Config
	batch   *sentiment.Batch

	songs     int64
	wordTotal int64
}

func newIngestor(tok token.Config, classify bool) (*ingestor, error) {
	in := &ingestor{
		words:   countmap.New(wordMapHint),
		artists: countmap.New(artistMapHint),
		tok:     tok,
	}
	if classify {
		b, err := sentiment.NewBatch("")
		if err != nil {
			return nil, err
		}
		in.batch = b
	}
	return in, nil
}

// add folds one record into the participant's local state.
func (in *ingestor) add(artist, text string) error {
	if artist != "" {
		in.artists.Increment(artist, 1)
	}
	if text != "" {
		s := token.NewScanner(text, in.tok)
		for s.Scan() {
			in.words.Increment(s.Token(), 1)
			in.wordTotal++
		}
		if in.batch != nil {
			if err := in.batch.Add(text); err != nil {
				return err
			}
		}
	}
	in.songs++
	return nil
}

// classify runs the external classifier over the buffered lyrics. A
// classifier failure degrades to zero totals rather than aborting the run.
func (in *ingestor) classify(ctx context.Context, script string) (sentiment.Totals, float64) {
	if in.batch == nil || script == "" {
		return sentiment.Totals{}, 0
	}
	start := time.Now()
	totals, err := in.batch.Classify(ctx, script)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		log.Warnf("[Sentiment] classifier failed, counting zero sentiment: %v", err)
		return sentiment.Totals{}, elapsed
	}
	return totals, elapsed
}

func (in *ingestor) close() {
	if in.batch != nil {
		in.batch.Close()
	}
}

// processRange folds one byte range of the dataset into in, honoring an
// optional per-participant record cap. It reports how many malformed rows
// the range reader skipped.
func processRange(in *ingestor, path string, rng partition.ByteRange, maxRecords int64) (int64, error) {
	rr, err := partition.OpenRange(path, rng)
	if err != nil {
		return 0, err
	}
	defer rr.Close()
	var n int64
	for {
		if maxRecords > 0 && n >= maxRecords {
			break
		}
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rr.Skipped(), err
		}
		if err := in.add(rec.Artist, rec.Text); err != nil {
			return rr.Skipped(), err
		}
		n++
	}
	return rr.Skipped(), nil
}

// shipResults sends a participant's partial state to the coordinator in the
// fixed merge order: both count tables, stats, timing, then Done.
func shipResults(c *wire.Conn, in *ingestor, skipped int64, totals sentiment.Totals, timing wire.Timing) error {
	if err := wire.SendCounts(c, wire.TableWord, in.words, 0); err != nil {
		return err
	}
	if err := wire.SendCounts(c, wire.TableArtist, in.artists, 0); err != nil {
		return err
	}
	stats := &wire.Stats{
		Songs:    in.songs,
		Words:    in.wordTotal,
		Skipped:  skipped,
		Positive: totals.Positive,
		Neutral:  totals.Neutral,
		Negative: totals.Negative,
	}
	if err := c.Send(stats); err != nil {
		return err
	}
	if err := c.Send(&timing); err != nil {
		return err
	}
	return c.Send(&wire.Done{})
}
