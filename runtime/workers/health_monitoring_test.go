package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	samples atomic.Int32
	rss     atomic.Uint64
}

func (r *recorder) UpdateProcess(rssBytes uint64, _ float64, _ int32) {
	r.rss.Store(rssBytes)
	r.samples.Add(1)
}

func TestHealthMonitoringWorker_SamplesOwnProcess(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	worker := NewHealthMonitoringWorker(logs.GetLoggerFromLevel(slog.LevelDebug), rec, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// When the worker runs for a few ticks
	req.NoError(worker.Run(ctx))

	// Then the process was sampled with a non zero resident size
	req.Positive(rec.samples.Load())
	req.Positive(rec.rss.Load())
}
