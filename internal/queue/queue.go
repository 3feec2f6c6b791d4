// Package queue is a thin port over the background task queue, so the
// notification path does not couple to a specific broker.
package queue

import "context"

// Task is one background job: a stable type string plus an opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a task; a non-nil error signals retry per broker policy.
// Handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, t Task) error
	Close() error
}

// Server runs background workers. Run blocks until the context is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}
