package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/types"
)

// ErrWriterClosed is returned for writes submitted after Close
var ErrWriterClosed = errors.Mark(errors.New("async writer is closed"), errors.ErrStorage)

// PendingWrite is the handle of an insert running in the background
type PendingWrite struct {
	done chan struct{}
	id   string
	err  error
}

// Wait blocks until the write finishes or ctx is done
func (p *PendingWrite) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.id, p.err
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "waiting for async write")
	}
}

// Done is closed when the write has finished
func (p *PendingWrite) Done() <-chan struct{} {
	return p.done
}

// AsyncWriter runs inserts on a bounded pool so callers are not blocked by storage I/O.
// Backend writes still serialize on the backend's own mutex.
type AsyncWriter struct {
	backend Backend
	sem     *semaphore.Weighted
	logger  *zap.SugaredLogger

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncWriter creates a writer running at most workers inserts at once
func NewAsyncWriter(backend Backend, workers int, log *zap.SugaredLogger) *AsyncWriter {
	if workers < 1 {
		workers = 1
	}
	return &AsyncWriter{
		backend: backend,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  logger.OrNop(log).Named("async"),
	}
}

func (w *AsyncWriter) submit(ctx context.Context, op, id string, fn func(context.Context) (string, error)) *PendingWrite {
	p := &PendingWrite{done: make(chan struct{})}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		p.err = errors.Wrapf(ErrWriterClosed, "%s %s", op, id)
		close(p.done)
		return p
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer close(p.done)

		if err := w.sem.Acquire(ctx, 1); err != nil {
			p.err = errors.Wrapf(err, "%s %s: waiting for a write slot", op, id)
			return
		}
		defer w.sem.Release(1)

		p.id, p.err = fn(ctx)
		if p.err != nil {
			w.logger.Debugw("Async write failed",
				logger.FieldOperation, op,
				"id", id,
				logger.FieldError, p.err,
			)
		}
	}()

	return p
}

// InsertExecution inserts exec in the background
func (w *AsyncWriter) InsertExecution(ctx context.Context, exec *types.Execution) *PendingWrite {
	return w.submit(ctx, "insert_execution", exec.ID, func(ctx context.Context) (string, error) {
		return w.backend.InsertExecution(ctx, exec)
	})
}

// InsertEpoch inserts epoch in the background
func (w *AsyncWriter) InsertEpoch(ctx context.Context, epoch *types.Epoch) *PendingWrite {
	return w.submit(ctx, "insert_epoch", epoch.ID, func(ctx context.Context) (string, error) {
		return w.backend.InsertEpoch(ctx, epoch)
	})
}

// InsertRequirements inserts req in the background
func (w *AsyncWriter) InsertRequirements(ctx context.Context, req *types.ExtractedRequirements) *PendingWrite {
	return w.submit(ctx, "insert_requirements", req.ID, func(ctx context.Context) (string, error) {
		return w.backend.InsertRequirements(ctx, req)
	})
}

// InsertUseCase inserts uc in the background
func (w *AsyncWriter) InsertUseCase(ctx context.Context, uc *types.GeneratedUseCase) *PendingWrite {
	return w.submit(ctx, "insert_use_case", uc.ID, func(ctx context.Context) (string, error) {
		return w.backend.InsertUseCase(ctx, uc)
	})
}

// InsertTemplate inserts tmpl in the background
func (w *AsyncWriter) InsertTemplate(ctx context.Context, tmpl *types.AnalysisTemplate) *PendingWrite {
	return w.submit(ctx, "insert_template", tmpl.ID, func(ctx context.Context) (string, error) {
		return w.backend.InsertTemplate(ctx, tmpl)
	})
}

// Close rejects new writes and waits for in-flight ones.
// It does not close the backend.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
}

// Failed returns a handle that has already failed with err
func Failed(err error) *PendingWrite {
	p := &PendingWrite{done: make(chan struct{}), err: err}
	close(p.done)
	return p
}
