package main

import (
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/mattn/go-isatty"

	"decal/internal/pipeline"
)

const progressPollInterval = 500 * time.Millisecond

// conversionProgress renders a terminal progress bar fed from the pool's
// completion counter.
type conversionProgress struct {
	writer  progress.Writer
	tracker *progress.Tracker
	stop    chan struct{}
	done    chan struct{}
}

func startConversionProgress(pool *pipeline.Pool, total int, out io.Writer) *conversionProgress {
	writer := progress.NewWriter()
	writer.SetOutputWriter(out)
	writer.SetUpdateFrequency(100 * time.Millisecond)
	writer.SetTrackerLength(30)

	tracker := &progress.Tracker{Message: "Converting stickers", Total: int64(total)}
	writer.AppendTracker(tracker)
	go writer.Render()

	display := &conversionProgress{
		writer:  writer,
		tracker: tracker,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go display.poll(pool)
	return display
}

func (p *conversionProgress) poll(pool *pipeline.Pool) {
	defer close(p.done)
	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			completed, _ := pool.Progress()
			p.tracker.SetValue(int64(completed))
		}
	}
}

// Finish records the final count and waits for the last frame to render.
func (p *conversionProgress) Finish(completed int) {
	close(p.stop)
	<-p.done
	p.tracker.SetValue(int64(completed))
	p.tracker.MarkAsDone()
	p.writer.Stop()
	for p.writer.IsRenderInProgress() {
		time.Sleep(5 * time.Millisecond)
	}
}

// isTerminal reports whether writer is attached to an interactive terminal.
func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
