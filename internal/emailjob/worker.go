// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package emailjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidBatchSize is returned by NewWorker for a non-positive batch size.
var ErrInvalidBatchSize = errors.New("worker batch size must be positive")

// BatchProcessor settles a batch of due jobs.
type BatchProcessor interface {
	ProcessDue(ctx context.Context, limit int) (Result, error)
}

// Worker runs a BatchProcessor every interval. A tick that is still
// running when the next one fires causes that next tick to be skipped.
type Worker struct {
	processor BatchProcessor
	batchSize int
	interval  time.Duration
}

// NewWorker validates the schedule and returns a Worker.
func NewWorker(processor BatchProcessor, batchSize int, interval time.Duration) (*Worker, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("worker interval must be positive: got %s", interval)
	}
	return &Worker{
		processor: processor,
		batchSize: batchSize,
		interval:  interval,
	}, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// an in-flight tick to finish.
func (w *Worker) Run(ctx context.Context) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(w.interval), cron.FuncJob(func() { w.Tick(ctx) }))

	slog.Info("email job worker starting",
		"interval", w.interval,
		"batch_size", w.batchSize,
	)
	c.Start()

	<-ctx.Done()
	slog.Info("email job worker stopping")
	<-c.Stop().Done()
}

// Tick processes one batch and logs a summary when any job was touched.
func (w *Worker) Tick(ctx context.Context) Result {
	res, err := w.processor.ProcessDue(ctx, w.batchSize)
	if err != nil {
		slog.Error("email job batch failed", "error", err)
		return res
	}
	if res.Total > 0 {
		slog.Info(fmt.Sprintf("Processed %d email jobs (sent=%d, failed=%d)", res.Total, res.Sent, res.Failed),
			"total", res.Total,
			"sent", res.Sent,
			"failed", res.Failed,
		)
	}
	return res
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
