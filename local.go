package lyricmr

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/emptyOVO/lyricmr-go/wire"
)

// RunLocal executes a full run inside one process: cfg.Workers worker
// goroutines talk to the coordinator over in-memory pipes, exercising the
// same protocol as a TCP deployment.
func RunLocal(ctx context.Context, cfg Config) (*Summary, error) {
	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conns := make([]*wire.Conn, cfg.Workers)
	ends := make([]net.Conn, cfg.Workers)
	var wg sync.WaitGroup
	errs := make([]error, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		a, b := net.Pipe()
		conns[i] = wire.NewConn(a)
		ends[i] = a
		wg.Add(1)
		go func(i int, nc net.Conn) {
			defer wg.Done()
			// Closing the pipe on failure unblocks the coordinator,
			// which then fails the run.
			defer nc.Close()
			c := wire.NewConn(nc)
			if err := c.Send(&wire.Hello{ID: uuid.New().String()}); err != nil {
				errs[i] = err
				return
			}
			if err := runWorkerConn(ctx, c); err != nil {
				log.Errorf("[Worker] rank %d failed: %v", i+1, err)
				errs[i] = err
			}
		}(i, b)
	}
	summary, runErr := runCoordinator(ctx, cfg, conns)
	// Tear down the coordinator ends so workers stuck in Receive unblock.
	for _, e := range ends {
		e.Close()
	}
	wg.Wait()
	if runErr != nil {
		return nil, runErr
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", i+1, err)
		}
	}
	return summary, nil
}
