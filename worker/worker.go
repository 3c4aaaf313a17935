// Copyright (c) 2020 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultQueue default queue depth
	DefaultQueue = 5
)

// Logger the subset of logging used by workers, satisfied by base.LogObject
type Logger interface {
	Tracef(format string, args ...interface{})
	Functionf(format string, args ...interface{})
	Noticef(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Work is one unit of work to perform in the background
type Work struct {
	// Key uniquely identifies the job. If non-empty, the result is kept
	// in a cache after processing, retrievable via Peek or Pop, and a
	// second submit with the same key while the first is in progress
	// returns JobInProgressError.
	Key string
	// Kind selects the Handler registered for this kind of work
	Kind string
	// Description work-specific data handed to the request function
	Description interface{}
}

// WorkResult the result of processing one Work item
type WorkResult struct {
	Key         string
	Error       error
	ErrorTime   time.Time
	Description interface{}
	Output      string
}

// WorkFunction performs the work in the worker goroutine
type WorkFunction func(ctx interface{}, w Work) WorkResult

// ResponseFunction processes a completed result in the caller's goroutine
type ResponseFunction func(ctx interface{}, res WorkResult) error

// Handler request/response pair for one Kind of work. Response may be nil.
type Handler struct {
	Request  WorkFunction
	Response ResponseFunction
}

// Worker captures the worker interface
type Worker interface {
	// Submit work; blocks retrying if the queue is full.
	// Returns JobInProgressError if the same key is already in progress.
	Submit(work Work) error
	// TrySubmit work; returns false if the queue was full.
	// Returns JobInProgressError if the same key is already in progress.
	TrySubmit(work Work) (bool, error)
	// Cancel a job which has not yet started processing. Idempotent.
	Cancel(key string)
	// Done stops the worker once the queue drains; the result channel is
	// closed after the last queued item's result has been delivered.
	Done()
	// NumPending number of submitted jobs whose result was not yet processed
	NumPending() int
	// NumResults number of results not yet retrieved
	NumResults() int
	// MsgChan returns a channel of Processors for completed jobs, to be
	// used in a select loop. Same channel as C.
	MsgChan() <-chan Processor
	// C returns a channel of Processors for completed jobs. Same channel
	// as MsgChan.
	C() <-chan Processor
	// Pop retrieve and remove a keyed result; nil if not present
	Pop(key string) *WorkResult
	// Peek retrieve a keyed result without removing it; nil if not present
	Peek(key string) *WorkResult
}

// basicWorker a single background goroutine processing a queue of Work
type basicWorker struct {
	queue      chan Work
	resultChan chan Processor
	log        Logger
	ctx        interface{}
	handlers   map[string]Handler

	lock       sync.Mutex
	inprogress map[string]bool // submitted, not yet processed by caller
	cancelled  map[string]bool
	results    map[string]WorkResult
	pending    int
}

// Processor wraps a completed job so the result can be processed in the
// caller's goroutine rather than in the worker's.
type Processor struct {
	worker *basicWorker
	work   Work
	result WorkResult
}

// Process runs the registered response handler, if any, in the calling
// goroutine and caches the result for Peek/Pop when the work had a key.
// done=true clears the in-progress marker so the key can be submitted again.
func (p Processor) Process(ctx interface{}, done bool) error {
	p.worker.complete(p.work, p.result, done)
	handler, ok := p.worker.handlers[p.work.Kind]
	if !ok {
		return fmt.Errorf("no handler for work kind %s", p.work.Kind)
	}
	if handler.Response == nil {
		return nil
	}
	return handler.Response(ctx, p.result)
}

// NewWorker creates a worker with a queue of the given length processing
// work of the registered kinds. A length of zero uses DefaultQueue.
func NewWorker(log Logger, ctx interface{}, length int, handlers map[string]Handler) Worker {
	if length == 0 {
		length = DefaultQueue
	}
	for kind, handler := range handlers {
		if handler.Request == nil {
			log.Fatalf("worker handler for kind %s has no request function",
				kind)
		}
	}
	w := &basicWorker{
		queue:      make(chan Work, length),
		resultChan: make(chan Processor, length),
		log:        log,
		ctx:        ctx,
		handlers:   handlers,
		inprogress: make(map[string]bool),
		cancelled:  make(map[string]bool),
		results:    make(map[string]WorkResult),
	}
	go w.processLoop()
	return w
}

// MsgChan returns a channel to be used in a select loop.
// This is a duplicate of C
func (w *basicWorker) MsgChan() <-chan Processor {
	return w.resultChan
}

// C returns a channel to be used in a select loop.
// This is a duplicate of MsgChan
func (w *basicWorker) C() <-chan Processor {
	return w.resultChan
}

// NumPending returns the number of submitted but not completed jobs
func (w *basicWorker) NumPending() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.pending
}

// NumResults returns the number of results waiting to be retrieved
func (w *basicWorker) NumResults() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return len(w.results) + len(w.resultChan)
}

// Submit will pass work to the worker. Blocks retrying if the queue is
// full. Returns JobInProgressError if the key is already in progress.
func (w *basicWorker) Submit(work Work) error {
	for {
		submitted, err := w.TrySubmit(work)
		if err != nil {
			return err
		}
		if submitted {
			return nil
		}
		time.Sleep(1 * time.Second)
	}
}

// TrySubmit will pass work to the worker. Returns false if the queue was
// full, JobInProgressError if the key is already in progress.
func (w *basicWorker) TrySubmit(work Work) (bool, error) {
	w.lock.Lock()
	if work.Key != "" && w.inprogress[work.Key] {
		w.lock.Unlock()
		return false, &JobInProgressError{
			s: fmt.Sprintf("job with key %s already in progress", work.Key)}
	}
	select {
	case w.queue <- work:
		if work.Key != "" {
			w.inprogress[work.Key] = true
			delete(w.cancelled, work.Key)
		}
		w.pending++
		w.lock.Unlock()
		w.log.Tracef("worker accepted job kind %s key %s", work.Kind, work.Key)
		return true, nil
	default:
		w.lock.Unlock()
		w.log.Tracef("worker queue full for job kind %s key %s",
			work.Kind, work.Key)
		return false, nil
	}
}

// Cancel drops a job which has not started processing yet. The job's key
// becomes submittable again. Idempotent; no error if the job is unknown,
// which means it either never was submitted or it already completed.
func (w *basicWorker) Cancel(key string) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.inprogress[key] {
		w.cancelled[key] = true
		delete(w.inprogress, key)
	}
}

// Done will stop the worker once the queue drains
func (w *basicWorker) Done() {
	close(w.queue)
}

// Pop get a result and remove it from the list
func (w *basicWorker) Pop(key string) *WorkResult {
	w.lock.Lock()
	defer w.lock.Unlock()
	if res, ok := w.results[key]; ok {
		delete(w.results, key)
		return &res
	}
	return nil
}

// Peek get a result without removing it from the list
func (w *basicWorker) Peek(key string) *WorkResult {
	w.lock.Lock()
	defer w.lock.Unlock()
	if res, ok := w.results[key]; ok {
		return &res
	}
	return nil
}

// complete records the outcome of a processed job, called from
// Processor.Process in the caller's goroutine
func (w *basicWorker) complete(work Work, result WorkResult, done bool) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pending--
	if work.Key != "" {
		w.results[work.Key] = result
		if done {
			delete(w.inprogress, work.Key)
		}
	}
}

func (w *basicWorker) processLoop() {
	for work := range w.queue {
		w.lock.Lock()
		skip := work.Key != "" && w.cancelled[work.Key]
		if skip {
			delete(w.cancelled, work.Key)
			w.pending--
		}
		w.lock.Unlock()
		if skip {
			w.log.Functionf("worker skipping cancelled job kind %s key %s",
				work.Kind, work.Key)
			continue
		}
		handler, ok := w.handlers[work.Kind]
		if !ok {
			w.log.Fatalf("worker received job of unknown kind %s", work.Kind)
		}
		w.log.Tracef("worker starting job kind %s key %s", work.Kind, work.Key)
		result := handler.Request(w.ctx, work)
		w.resultChan <- Processor{worker: w, work: work, result: result}
		w.log.Tracef("worker finished job kind %s key %s", work.Kind, work.Key)
	}
	close(w.resultChan)
}
