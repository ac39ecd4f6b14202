// Package pipeline runs sticker conversion tasks on a fixed worker pool.
//
// The queue is fully populated and closed before any worker starts, so
// workers drain it and exit. A task failure is logged and recorded on its
// outcome; the worker moves on to the next task. The completion counter
// advances exactly once per terminal task and is safe to poll from outside
// the pool while a batch runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"decal/internal/anim"
	"decal/internal/encode"
	"decal/internal/fileutil"
	"decal/internal/logging"
	"decal/internal/services"
	"decal/internal/sticker"
)

// Decryptor reverses the cdn obfuscation on a raw asset.
type Decryptor interface {
	Decrypt(data []byte) []byte
}

// Splitter expands a decrypted asset into frame records and pixel data.
type Splitter interface {
	Split(ctx context.Context, data []byte) (*anim.Animation, error)
}

// Encoder renders composited frames into the task's target format.
type Encoder interface {
	Encode(ctx context.Context, task sticker.ProcessTask, frames []anim.Frame, workdir string) (encode.Result, error)
}

// Outcome is the terminal state of one task.
type Outcome struct {
	Task          sticker.ProcessTask
	Err           error
	Oversize      bool
	CorrelationID string
}

// Pool is a fixed-size worker pool. One batch runs at a time.
type Pool struct {
	workers int
	dec     Decryptor
	split   Splitter
	enc     Encoder
	logger  *slog.Logger

	mu        sync.Mutex
	running   bool
	completed int
	total     int
	queue     chan sticker.ProcessTask
}

// New constructs a pool with a fixed worker count.
func New(workers int, dec Decryptor, split Splitter, enc Encoder, logger *slog.Logger) (*Pool, error) {
	if workers < 1 {
		return nil, errors.New("pool requires at least one worker")
	}
	if dec == nil || split == nil || enc == nil {
		return nil, errors.New("pool requires decryptor, splitter, and encoder")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{workers: workers, dec: dec, split: split, enc: enc, logger: logger}, nil
}

// Run processes every task and blocks until all workers have exited. Task
// failures are recorded on the outcomes, not returned; the error reports
// batch-level problems only.
func (p *Pool) Run(ctx context.Context, tasks []sticker.ProcessTask) ([]Outcome, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, errors.New("pool is already running a batch")
	}
	p.running = true
	p.completed = 0
	p.total = len(tasks)
	queue := make(chan sticker.ProcessTask, len(tasks))
	p.queue = queue
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for _, task := range tasks {
		queue <- task
	}
	close(queue)

	batchRoot, err := os.MkdirTemp("", "decal-")
	if err != nil {
		return nil, fmt.Errorf("create batch temp root: %w", err)
	}
	defer os.RemoveAll(batchRoot)

	var (
		wg        sync.WaitGroup
		outcomeMu sync.Mutex
		outcomes  []Outcome
	)
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.logger.Debug("worker started", logging.Int("worker", worker))
			for {
				if ctx.Err() != nil {
					return
				}
				select {
				case <-ctx.Done():
					return
				case task, ok := <-queue:
					if !ok {
						return
					}
					outcome := p.runTask(ctx, task, batchRoot)
					outcomeMu.Lock()
					outcomes = append(outcomes, outcome)
					outcomeMu.Unlock()
					p.mu.Lock()
					p.completed++
					p.mu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()
	return outcomes, ctx.Err()
}

// Progress reports completed and total task counts for the current batch.
func (p *Pool) Progress() (completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.total
}

// QueueDepth reports how many tasks are still waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return 0
	}
	return len(p.queue)
}

func (p *Pool) runTask(ctx context.Context, task sticker.ProcessTask, batchRoot string) Outcome {
	correlationID := uuid.NewString()
	ctx = services.WithCorrelationID(ctx, correlationID)
	ctx = services.WithStickerID(ctx, task.ID)
	logger := logging.WithContext(ctx, p.logger)

	outcome := Outcome{Task: task, CorrelationID: correlationID}
	if err := task.Validate(); err != nil {
		outcome.Err = err
		logger.Error("task rejected", logging.Error(err))
		return outcome
	}

	workdir, err := os.MkdirTemp(batchRoot, "sticker-")
	if err != nil {
		outcome.Err = fmt.Errorf("sticker %s: create workdir: %w", task.ID, err)
		logger.Error("task failed", logging.Error(outcome.Err))
		return outcome
	}
	defer os.RemoveAll(workdir)

	result, err := p.process(ctx, task, workdir)
	if err != nil {
		outcome.Err = err
		logger.Error("task failed",
			logging.String("kind", services.Kind(err)),
			logging.Error(err))
		return outcome
	}
	outcome.Oversize = result.Oversize
	logger.Info("task complete",
		logging.String("output", task.OutputPath),
		logging.Float64("duration_s", result.DurationSeconds),
		logging.Int64("size_bytes", result.SizeBytes))
	return outcome
}

func (p *Pool) process(ctx context.Context, task sticker.ProcessTask, workdir string) (encode.Result, error) {
	raw, err := os.ReadFile(task.InputPath)
	if err != nil {
		return encode.Result{}, fmt.Errorf("sticker %s: read input: %w", task.ID, err)
	}
	plain := p.dec.Decrypt(raw)

	animation, err := p.split.Split(services.WithStage(ctx, "split"), plain)
	if err != nil {
		return encode.Result{}, err
	}
	frames, err := anim.Compose(animation)
	if err != nil {
		return encode.Result{}, err
	}
	result, err := p.enc.Encode(services.WithStage(ctx, "encode"), task, frames, workdir)
	if err != nil {
		return encode.Result{}, err
	}

	if err := os.MkdirAll(filepath.Dir(task.OutputPath), 0o755); err != nil {
		return encode.Result{}, fmt.Errorf("sticker %s: create output dir: %w", task.ID, err)
	}
	if err := fileutil.CopyFileVerified(result.OutputPath, task.OutputPath); err != nil {
		return encode.Result{}, fmt.Errorf("sticker %s: deliver artifact: %w", task.ID, err)
	}
	return result, nil
}
