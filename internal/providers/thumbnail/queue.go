// Package thumbnail queues experience header images for delivery to the
// tablet. Delivery itself is done by a FileSender.
package thumbnail

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

// FileSender delivers one file to the remote peer
type FileSender interface {
	SendFile(ctx context.Context, kind, name, path string) error
}

type job struct {
	kind string
	name string
	path string
}

// Queue is a FIFO of pending header-image transfers served by one worker
type Queue struct {
	jobs     chan job
	sender   FileSender
	reporter types.Reporter
	logger   *logging.Logger

	mu      sync.Mutex
	sent    int
	dropped int
}

// New creates a queue holding at most size pending transfers
func New(sender FileSender, reporter types.Reporter, size int, logger *logging.Logger) *Queue {
	if size <= 0 {
		size = 32
	}
	return &Queue{
		jobs:     make(chan job, size),
		sender:   sender,
		reporter: reporter,
		logger:   logger.Component("thumbnail"),
	}
}

// Enqueue schedules path for delivery. It never blocks; when the queue
// is full the transfer is reported as failed.
func (q *Queue) Enqueue(kind, name, path string) {
	select {
	case q.jobs <- job{kind: kind, name: name, path: path}:
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		q.logger.Warn("Thumbnail queue full", zap.String("name", name))
		q.fail(name)
	}
}

// Run delivers queued images until ctx is cancelled
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.deliver(ctx, j)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, j job) {
	defer q.logger.Recover("thumbnail delivery")

	if err := validate(j.path); err != nil {
		q.logger.Warn("Header image rejected", zap.String("name", j.name), zap.Error(err))
		q.fail(j.name)
		return
	}
	if err := q.sender.SendFile(ctx, j.kind, j.name, j.path); err != nil {
		q.logger.Warn("Header image delivery failed", zap.String("name", j.name), zap.Error(err))
		q.fail(j.name)
		return
	}
	q.mu.Lock()
	q.sent++
	q.mu.Unlock()
}

func (q *Queue) fail(name string) {
	if q.reporter != nil {
		q.reporter.PassMessage(types.NewMessage(types.KindThumbnailError, name))
	}
}

// Stats returns delivered and dropped counts
func (q *Queue) Stats() (sent, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sent, q.dropped
}

func validate(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("not an image: %s", mtype.String())
	}
	return nil
}
