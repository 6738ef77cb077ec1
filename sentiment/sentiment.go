// Package sentiment hands batches of lyric text to an external classifier
// process. The contract is narrow on purpose: one lyric per line in a
// temporary file, three whitespace-separated integers (positive, neutral,
// negative) on the classifier's stdout. The counts are opaque to this side;
// they are only ever summed across participants.
package sentiment

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Totals are the classifier's counts for one batch.
type Totals struct {
	Positive int64
	Neutral  int64
	Negative int64
}

// Add accumulates another batch's totals.
func (t *Totals) Add(o Totals) {
	t.Positive += o.Positive
	t.Neutral += o.Neutral
	t.Negative += o.Negative
}

// Batch buffers one participant's lyric lines into a temp file.
type Batch struct {
	f     *os.File
	w     *bufio.Writer
	path  string
	lines int64
}

// NewBatch creates the participant's batch file in dir ("" = os.TempDir).
func NewBatch(dir string) (*Batch, error) {
	f, err := os.CreateTemp(dir, "lyric-batch-*.txt")
	if err != nil {
		return nil, fmt.Errorf("create batch file: %w", err)
	}
	return &Batch{f: f, w: bufio.NewWriter(f), path: f.Name()}, nil
}

// Add appends one lyric as a single line, flattening embedded line breaks to
// spaces so the classifier sees exactly one lyric per line.
func (b *Batch) Add(text string) error {
	flat := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, text)
	if _, err := b.w.WriteString(flat); err != nil {
		return err
	}
	if err := b.w.WriteByte('\n'); err != nil {
		return err
	}
	b.lines++
	return nil
}

// Len reports how many lyrics the batch holds.
func (b *Batch) Len() int64 { return b.lines }

// Classify flushes the batch and runs the classifier over it. The script's
// stdout must be three integers; anything else is an error.
func (b *Batch) Classify(ctx context.Context, script string) (Totals, error) {
	if err := b.w.Flush(); err != nil {
		return Totals{}, err
	}
	if err := b.f.Sync(); err != nil {
		return Totals{}, err
	}

	cmd := exec.CommandContext(ctx, "python3", script, "--input", b.path)
	out, err := cmd.Output()
	if err != nil {
		return Totals{}, fmt.Errorf("run classifier %s: %w", script, err)
	}
	return parseOutput(out)
}

func parseOutput(out []byte) (Totals, error) {
	var t Totals
	trimmed := strings.TrimSpace(string(out))
	if _, err := fmt.Sscanf(trimmed, "%d %d %d",
		&t.Positive, &t.Neutral, &t.Negative); err != nil {
		return Totals{}, fmt.Errorf("unexpected classifier output %q: %w", trimmed, err)
	}
	return t, nil
}

// Close removes the batch file.
func (b *Batch) Close() {
	if err := b.f.Close(); err != nil {
		log.Warnf("[sentiment] close batch file: %v", err)
	}
	if err := os.Remove(b.path); err != nil {
		log.Warnf("[sentiment] remove batch file %s: %v", b.path, err)
	}
}
