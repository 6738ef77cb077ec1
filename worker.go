package lyricmr

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/emptyOVO/lyricmr-go/partition"
	"github.com/emptyOVO/lyricmr-go/wire"
)

// RunWorker dials the coordinator, processes the share it is assigned, and
// ships its partial results. It returns once the run is over.
func RunWorker(ctx context.Context, addr string) error {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer nc.Close()
	c := wire.NewConn(nc)
	id := uuid.New().String()
	if err := c.Send(&wire.Hello{ID: id}); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	log.Infof("[Worker %s] connected to %s", id, addr)
	return runWorkerConn(ctx, c)
}

// runWorkerConn is the worker half of the protocol on an established
// connection: wait for the assignment, process, ship results.
func runWorkerConn(ctx context.Context, c *wire.Conn) error {
	msg, err := c.Receive()
	if err != nil {
		return fmt.Errorf("await assignment: %w", err)
	}
	assign, ok := msg.(*wire.Assign)
	if !ok {
		return fmt.Errorf("expected assignment, got %T", msg)
	}
	log.Infof("[Worker] rank %d of %d, %s mode", assign.Rank, assign.Participants, assign.Mode)

	in, err := newIngestor(assign.Token, assign.Sentiment)
	if err != nil {
		return err
	}
	defer in.close()

	start := time.Now()
	var skipped int64
	switch assign.Mode {
	case partition.ModePush:
		skipped, err = receivePush(c, in)
	case partition.ModeRange:
		skipped, err = processRange(in, assign.Input, assign.Range, assign.MaxRecords)
	default:
		err = fmt.Errorf("unknown mode %d", assign.Mode)
	}
	if err != nil {
		return err
	}
	processSeconds := time.Since(start).Seconds()
	log.Infof("[Worker] rank %d processed %d songs, %d words in %.3fs",
		assign.Rank, in.songs, in.wordTotal, processSeconds)

	var script string
	if assign.Sentiment {
		script = assign.Script
	}
	totals, classifySeconds := in.classify(ctx, script)

	timing := wire.Timing{
		ProcessSeconds:  processSeconds,
		ClassifySeconds: classifySeconds,
		TotalSeconds:    time.Since(start).Seconds(),
	}
	if err := shipResults(c, in, skipped, totals, timing); err != nil {
		return fmt.Errorf("ship results: %w", err)
	}
	log.Infof("[Worker] rank %d done", assign.Rank)
	return nil
}

// receivePush ingests the coordinator's record stream until EndRecords.
// Pushed records were already validated coordinator-side, so skips stay zero.
func receivePush(c *wire.Conn, in *ingestor) (int64, error) {
	for {
		msg, err := c.Receive()
		if err != nil {
			return 0, fmt.Errorf("record stream: %w", err)
		}
		switch m := msg.(type) {
		case *wire.Record:
			if err := in.add(m.Artist, m.Text); err != nil {
				return 0, err
			}
		case *wire.EndRecords:
			return 0, nil
		default:
			return 0, fmt.Errorf("unexpected %T in record stream", msg)
		}
	}
}
