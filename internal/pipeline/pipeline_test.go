package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"decal/internal/anim"
	"decal/internal/encode"
	"decal/internal/logging"
	"decal/internal/pipeline"
	"decal/internal/services"
	"decal/internal/sticker"
	"decal/internal/xorpad"
)

type decryptorFunc func([]byte) []byte

func (f decryptorFunc) Decrypt(data []byte) []byte { return f(data) }

type splitterFunc func(context.Context, []byte) (*anim.Animation, error)

func (f splitterFunc) Split(ctx context.Context, data []byte) (*anim.Animation, error) {
	return f(ctx, data)
}

type encoderFunc func(context.Context, sticker.ProcessTask, []anim.Frame, string) (encode.Result, error)

func (f encoderFunc) Encode(ctx context.Context, task sticker.ProcessTask, frames []anim.Frame, workdir string) (encode.Result, error) {
	return f(ctx, task, frames, workdir)
}

func passDecryptor() pipeline.Decryptor {
	return decryptorFunc(func(data []byte) []byte { return data })
}

func oneFrameAnimation() *anim.Animation {
	return &anim.Animation{
		Width:   2,
		Height:  2,
		Records: []anim.FrameRecord{{Index: 0, DurationCS: 10, Region: anim.Rect{W: 2, H: 2}}},
		Frames:  []image.Image{image.NewRGBA(image.Rect(0, 0, 2, 2))},
	}
}

func stubSplitter() pipeline.Splitter {
	return splitterFunc(func(context.Context, []byte) (*anim.Animation, error) {
		return oneFrameAnimation(), nil
	})
}

// writingEncoder produces a per-task artifact whose content names the task,
// so delivered files prove which task produced them.
func writingEncoder() pipeline.Encoder {
	return encoderFunc(func(_ context.Context, task sticker.ProcessTask, _ []anim.Frame, workdir string) (encode.Result, error) {
		path := filepath.Join(workdir, "out.gif")
		payload := []byte("artifact:" + task.ID)
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return encode.Result{}, err
		}
		return encode.Result{OutputPath: path, SizeBytes: int64(len(payload))}, nil
	})
}

func makeTasks(t *testing.T, count int) []sticker.ProcessTask {
	t.Helper()
	dir := t.TempDir()
	tasks := make([]sticker.ProcessTask, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("4404138-%03d", i+1)
		input := filepath.Join(dir, id+".webp")
		if err := os.WriteFile(input, []byte("raw-"+id), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		tasks = append(tasks, sticker.ProcessTask{
			ID:         id,
			InputPath:  input,
			Operations: []sticker.Operation{sticker.OpToGIF},
			OutputPath: filepath.Join(dir, "out", id+".gif"),
		})
	}
	return tasks
}

func newPool(t *testing.T, workers int, dec pipeline.Decryptor, split pipeline.Splitter, enc pipeline.Encoder) *pipeline.Pool {
	t.Helper()
	pool, err := pipeline.New(workers, dec, split, enc, logging.NewNop())
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	return pool
}

func TestRunDeliversEveryTask(t *testing.T) {
	tasks := makeTasks(t, 5)
	pool := newPool(t, 3, passDecryptor(), stubSplitter(), writingEncoder())

	outcomes, err := pool.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcomes) != len(tasks) {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), len(tasks))
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			t.Fatalf("task %s failed: %v", outcome.Task.ID, outcome.Err)
		}
		if outcome.CorrelationID == "" {
			t.Fatalf("task %s missing correlation id", outcome.Task.ID)
		}
	}
	for _, task := range tasks {
		data, err := os.ReadFile(task.OutputPath)
		if err != nil {
			t.Fatalf("artifact for %s not delivered: %v", task.ID, err)
		}
		if string(data) != "artifact:"+task.ID {
			t.Fatalf("artifact for %s carries wrong payload %q", task.ID, data)
		}
	}
	completed, total := pool.Progress()
	if completed != 5 || total != 5 {
		t.Fatalf("Progress() = %d/%d, want 5/5", completed, total)
	}
	if depth := pool.QueueDepth(); depth != 0 {
		t.Fatalf("QueueDepth() = %d, want 0", depth)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	tasks := makeTasks(t, 4)
	badSplit := tasks[1].ID
	badEncode := tasks[2].ID

	split := splitterFunc(func(_ context.Context, data []byte) (*anim.Animation, error) {
		if strings.HasSuffix(string(data), badSplit) {
			return nil, services.Wrap(services.ErrDecode, "split", "parse container", "", nil)
		}
		return oneFrameAnimation(), nil
	})
	enc := encoderFunc(func(_ context.Context, task sticker.ProcessTask, _ []anim.Frame, workdir string) (encode.Result, error) {
		if task.ID == badEncode {
			return encode.Result{}, services.Wrap(services.ErrEncode, "encode", "render gif", "", nil)
		}
		path := filepath.Join(workdir, "out.gif")
		if err := os.WriteFile(path, []byte("artifact:"+task.ID), 0o644); err != nil {
			return encode.Result{}, err
		}
		return encode.Result{OutputPath: path}, nil
	})

	pool := newPool(t, 2, passDecryptor(), split, enc)
	outcomes, err := pool.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outcomes))
	}

	failures := map[string]error{}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failures[outcome.Task.ID] = outcome.Err
		}
	}
	if len(failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(failures))
	}
	if !errors.Is(failures[badSplit], services.ErrDecode) {
		t.Fatalf("split failure = %v, want ErrDecode", failures[badSplit])
	}
	if !errors.Is(failures[badEncode], services.ErrEncode) {
		t.Fatalf("encode failure = %v, want ErrEncode", failures[badEncode])
	}

	// The counter reaches the batch total even though two tasks failed.
	completed, total := pool.Progress()
	if completed != 4 || total != 4 {
		t.Fatalf("Progress() = %d/%d, want 4/4", completed, total)
	}

	for _, task := range tasks {
		_, err := os.Stat(task.OutputPath)
		if task.ID == badSplit || task.ID == badEncode {
			if err == nil {
				t.Fatalf("failed task %s should not deliver an artifact", task.ID)
			}
			continue
		}
		if err != nil {
			t.Fatalf("artifact for %s not delivered: %v", task.ID, err)
		}
	}
}

func TestRunProcessesEachTaskExactlyOnce(t *testing.T) {
	tasks := makeTasks(t, 20)

	var mu sync.Mutex
	seen := map[string]int{}
	enc := encoderFunc(func(_ context.Context, task sticker.ProcessTask, _ []anim.Frame, workdir string) (encode.Result, error) {
		mu.Lock()
		seen[task.ID]++
		mu.Unlock()
		path := filepath.Join(workdir, "out.gif")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			return encode.Result{}, err
		}
		return encode.Result{OutputPath: path}, nil
	})

	pool := newPool(t, 8, passDecryptor(), stubSplitter(), enc)
	if _, err := pool.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(seen) != len(tasks) {
		t.Fatalf("processed %d unique tasks, want %d", len(seen), len(tasks))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("task %s processed %d times", id, count)
		}
	}
}

func TestRunDecryptsBeforeSplitting(t *testing.T) {
	plaintext := []byte("RIFF....WEBP pretend payload")
	encrypted := xorpad.Decrypt(plaintext)

	dir := t.TempDir()
	input := filepath.Join(dir, "enc.webp")
	if err := os.WriteFile(input, encrypted, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	task := sticker.ProcessTask{
		ID:         "4404138-001",
		InputPath:  input,
		Operations: []sticker.Operation{sticker.OpToGIF},
		OutputPath: filepath.Join(dir, "out", "4404138-001.gif"),
	}

	var got []byte
	split := splitterFunc(func(_ context.Context, data []byte) (*anim.Animation, error) {
		got = append([]byte(nil), data...)
		return oneFrameAnimation(), nil
	})

	pool := newPool(t, 1, xorpad.Default(), split, writingEncoder())
	if _, err := pool.Run(context.Background(), []sticker.ProcessTask{task}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("splitter saw %q, want decrypted payload", got)
	}
}

func TestRunStampsDistinctCorrelationIDs(t *testing.T) {
	tasks := makeTasks(t, 6)

	var mu sync.Mutex
	fromCtx := map[string]string{}
	split := splitterFunc(func(ctx context.Context, _ []byte) (*anim.Animation, error) {
		id, ok := services.CorrelationIDFromContext(ctx)
		if !ok {
			return nil, errors.New("missing correlation id in context")
		}
		stickerID, _ := services.StickerIDFromContext(ctx)
		mu.Lock()
		fromCtx[stickerID] = id
		mu.Unlock()
		return oneFrameAnimation(), nil
	})

	pool := newPool(t, 3, passDecryptor(), split, writingEncoder())
	outcomes, err := pool.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	distinct := map[string]bool{}
	for _, outcome := range outcomes {
		if fromCtx[outcome.Task.ID] != outcome.CorrelationID {
			t.Fatalf("context correlation id %q != outcome %q", fromCtx[outcome.Task.ID], outcome.CorrelationID)
		}
		distinct[outcome.CorrelationID] = true
	}
	if len(distinct) != len(tasks) {
		t.Fatalf("correlation ids not distinct: %d unique of %d", len(distinct), len(tasks))
	}
}

func TestRunPropagatesOversizeFlag(t *testing.T) {
	tasks := makeTasks(t, 1)
	enc := encoderFunc(func(_ context.Context, _ sticker.ProcessTask, _ []anim.Frame, workdir string) (encode.Result, error) {
		path := filepath.Join(workdir, "out.webm")
		if err := os.WriteFile(path, []byte("big"), 0o644); err != nil {
			return encode.Result{}, err
		}
		return encode.Result{OutputPath: path, Oversize: true}, nil
	})

	pool := newPool(t, 1, passDecryptor(), stubSplitter(), enc)
	outcomes, err := pool.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !outcomes[0].Oversize {
		t.Fatal("outcome should carry the oversize warning")
	}
	if outcomes[0].Err != nil {
		t.Fatalf("oversize must not fail the task: %v", outcomes[0].Err)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	pool := newPool(t, 2, passDecryptor(), stubSplitter(), writingEncoder())
	outcomes, err := pool.Run(context.Background(), nil)
	if err != nil || outcomes != nil {
		t.Fatalf("Run(nil) = %v, %v, want nil, nil", outcomes, err)
	}
}

func TestRunHonorsPreCancelledContext(t *testing.T) {
	tasks := makeTasks(t, 4)
	pool := newPool(t, 2, passDecryptor(), stubSplitter(), writingEncoder())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes, err := pool.Run(ctx, tasks)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("outcomes = %d, want 0 for pre-cancelled context", len(outcomes))
	}
}

func TestRunRecordsValidationFailures(t *testing.T) {
	tasks := makeTasks(t, 2)
	tasks[1].Operations = nil

	pool := newPool(t, 2, passDecryptor(), stubSplitter(), writingEncoder())
	outcomes, err := pool.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var invalid *pipeline.Outcome
	for i := range outcomes {
		if outcomes[i].Task.ID == tasks[1].ID {
			invalid = &outcomes[i]
		}
	}
	if invalid == nil || !errors.Is(invalid.Err, services.ErrValidation) {
		t.Fatalf("invalid task outcome = %+v, want ErrValidation", invalid)
	}
	completed, total := pool.Progress()
	if completed != 2 || total != 2 {
		t.Fatalf("Progress() = %d/%d, want 2/2", completed, total)
	}
}
