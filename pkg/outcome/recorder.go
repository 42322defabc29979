package outcome

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RecorderConfig configures the async outcome recorder.
type RecorderConfig struct {
	// Buffer is the size of the async write channel. Default: 1000
	Buffer int

	// WriteTimeout bounds each storage write. Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		Buffer:       1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder hands outcome events and transition records off to storage
// asynchronously. The decision path calls Record and returns
// immediately; a slow backend never adds latency to an allow/block
// decision. When the buffer is full the event is dropped and counted
// rather than blocking the caller.
type Recorder struct {
	backend Backend
	config  *RecorderConfig
	ch      chan any
	dropped atomic.Int64
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// NewRecorder creates a recorder and starts its background worker.
func NewRecorder(backend Backend, config *RecorderConfig) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}
	r := &Recorder{
		backend: backend,
		config:  config,
		ch:      make(chan any, config.Buffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "outcome.recorder"),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues an event for async persistence. Never blocks.
func (r *Recorder) Record(ev *Event) {
	if ev == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case r.ch <- ev:
	default:
		r.dropped.Add(1)
	}
}

// RecordTransition enqueues a transition record for async persistence.
// Never blocks.
func (r *Recorder) RecordTransition(tr *Transition) {
	if tr == nil {
		return
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	select {
	case r.ch <- tr:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of records dropped because the buffer was
// full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the buffer and stops the worker. Safe to call more than
// once.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case item := <-r.ch:
			r.write(item)
		case <-r.done:
			// Drain remaining records before stopping.
			for {
				select {
				case item := <-r.ch:
					r.write(item)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(item any) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	var err error
	switch v := item.(type) {
	case *Event:
		err = r.backend.Save(ctx, v)
	case *Transition:
		err = r.backend.SaveTransition(ctx, v)
	}
	if err != nil {
		r.logger.Error("failed to persist outcome record", "error", err)
	}
}
