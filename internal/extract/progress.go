// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCacheHit  Status = "cache-hit"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// ProgressEvent reports one task transition. Index is the task's position
// in selection order and Worker is zero for sequential runs.
type ProgressEvent struct {
	Extractor string
	Index     int
	Total     int
	Status    Status
	Worker    int
	Duration  time.Duration
	Err       error
}

// ProgressFunc observes task transitions.
type ProgressFunc func(ProgressEvent)

// emit delivers ev to the progress callback. A panicking callback is
// logged and otherwise ignored.
func (c *Coordinator) emit(ev ProgressEvent) {
	if c.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("progress callback panicked",
				slog.String("extractor", ev.Extractor),
				slog.Any("panic", r),
			)
		}
	}()
	c.progress(ev)
}

// WriterProgress prints one line per finished task to w, in the same
// "[i/n]" shape the CLI uses for every long-running step.
func WriterProgress(w io.Writer) ProgressFunc {
	var mu sync.Mutex
	return func(ev ProgressEvent) {
		var line string
		switch ev.Status {
		case StatusSuccess:
			line = fmt.Sprintf("  [%d/%d] %s ok (%s)\n", ev.Index+1, ev.Total, ev.Extractor, ev.Duration.Round(time.Millisecond))
		case StatusCacheHit:
			line = fmt.Sprintf("  [%d/%d] %s cached\n", ev.Index+1, ev.Total, ev.Extractor)
		case StatusFailed:
			line = fmt.Sprintf("  [%d/%d] %s FAILED: %v\n", ev.Index+1, ev.Total, ev.Extractor, ev.Err)
		default:
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(w, line)
	}
}
