package main

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work run by the pool.
type Task interface {
	Execute(context.Context, int) error
}

// Pool runs tasks on a fixed number of workers. The first failing task
// cancels the remaining ones.
type Pool struct {
	size  int
	tasks chan Task
	group *errgroup.Group
}

// NewPool creates a pool of sz workers able to queue maxTasks tasks.
func NewPool(sz int, maxTasks int) *Pool {
	return &Pool{
		size:  sz,
		tasks: make(chan Task, maxTasks),
	}
}

// AddTask queues a task.
func (p *Pool) AddTask(task Task) {
	p.tasks <- task
}

// Start starts the workers.
func (p *Pool) Start(ctx context.Context) {
	group, ctx := errgroup.WithContext(ctx)
	p.group = group
	for w := 1; w <= p.size; w++ {
		group.Go(func() error {
			return p.run(ctx, w)
		})
	}
}

// Wait stops accepting tasks, waits for the queued ones and returns the
// first error.
func (p *Pool) Wait() error {
	close(p.tasks)
	return p.group.Wait()
}

func (p *Pool) run(ctx context.Context, worker int) error {
	for task := range p.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task.Execute(ctx, worker); err != nil {
			return err
		}
	}
	return nil
}
