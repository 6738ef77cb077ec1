// Package report writes the run's final artifacts: the two ranked CSV
// tables and the performance metrics summary.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/emptyOVO/lyricmr-go/rank"
)

// Output file names under the output directory.
const (
	WordCountsFile = "word_counts.csv"
	TopArtistsFile = "top_artists.csv"
	MetricsFile    = "performance_metrics.json"
)

// WriteCountsCSV writes a ranked table as `<keyHeader>,count` rows. Values
// containing the delimiter, a quote or a line break are quoted, with embedded
// quotes doubled (encoding/csv's RFC 4180 behavior).
func WriteCountsCSV(path, keyHeader string, entries []rank.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{keyHeader, "count"}); err != nil {
		f.Close()
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Key, strconv.FormatInt(e.Count, 10)}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Stat is one reduced timing scalar across participants.
type Stat struct {
	MinSeconds float64 `json:"min_seconds"`
	MaxSeconds float64 `json:"max_seconds"`
	AvgSeconds float64 `json:"avg_seconds"`
}

// Timing is one participant's measured phases.
type Timing struct {
	Rank            int
	ProcessSeconds  float64
	ClassifySeconds float64
	TotalSeconds    float64
}

// Metrics is the structured summary written alongside the tables.
type Metrics struct {
	Processes         int   `json:"processes"`
	TotalSongs        int64 `json:"total_songs"`
	TotalWords        int64 `json:"total_words"`
	SkippedRecords    int64 `json:"skipped_records"`
	SentimentPositive int64 `json:"sentiment_positive"`
	SentimentNeutral  int64 `json:"sentiment_neutral"`
	SentimentNegative int64 `json:"sentiment_negative"`
	ProcessTime       Stat  `json:"process_time"`
	ClassifyTime      Stat  `json:"classify_time"`
	TotalTime         Stat  `json:"total_time"`
}

// Reduce folds per-participant timings into min/max/avg stats.
func Reduce(timings []Timing) (process, classify, total Stat) {
	if len(timings) == 0 {
		return
	}
	reduce := func(pick func(Timing) float64) Stat {
		s := Stat{MinSeconds: pick(timings[0]), MaxSeconds: pick(timings[0])}
		sum := 0.0
		for _, t := range timings {
			v := pick(t)
			if v < s.MinSeconds {
				s.MinSeconds = v
			}
			if v > s.MaxSeconds {
				s.MaxSeconds = v
			}
			sum += v
		}
		s.AvgSeconds = sum / float64(len(timings))
		return s
	}
	process = reduce(func(t Timing) float64 { return t.ProcessSeconds })
	classify = reduce(func(t Timing) float64 { return t.ClassifySeconds })
	total = reduce(func(t Timing) float64 { return t.TotalSeconds })
	return
}

// WriteMetricsJSON writes the metrics summary with stable formatting.
func WriteMetricsJSON(path string, m Metrics) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates the output directory if needed.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return nil
}

// Paths returns the three artifact paths under dir.
func Paths(dir string) (words, artists, metrics string) {
	return filepath.Join(dir, WordCountsFile),
		filepath.Join(dir, TopArtistsFile),
		filepath.Join(dir, MetricsFile)
}
