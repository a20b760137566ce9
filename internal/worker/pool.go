// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package worker runs independent jobs on a bounded pool of goroutines.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work. worker identifies the goroutine running it, in
// [1, pool size].
type Job interface {
	Execute(ctx context.Context, worker int) Result
}

// Result is the outcome of one job.
type Result interface {
	GetError() error
}

// Pool manages a fixed number of workers that execute submitted jobs.
// Results are returned in completion order; callers that need submission
// order must reorder them.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	limiter    *Limiter
}

// NewPool creates a pool with the given number of workers. A non-positive
// count is treated as one.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers),
		results:    make(chan Result, workers),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// WithLimiter makes every worker wait on l before starting a job.
func (p *Pool) WithLimiter(l *Limiter) *Pool {
	p.limiter = l
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.workers
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if err := p.limiter.Wait(p.ctx); err != nil {
				return
			}
			result := job.Execute(p.ctx, id)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It blocks while the queue is full and drops the job
// if the pool has been shut down.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- job:
	}
}

// Wait closes the queue, waits for all jobs, and returns their results.
// Both channels hold one pool's worth of items, so submitting more jobs
// than workers requires Submit to run on another goroutine.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}
	p.cancelFunc()
	return results
}

// Shutdown stops the pool without waiting for queued jobs.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
