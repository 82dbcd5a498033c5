package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/model"
)

var errQueueClosed = errors.New("write queue is closed")

type writeOpType int

const (
	opCreateRun writeOpType = iota
	opUpdateRun
	opPruneRuns
)

// writeOp is a single write with its response channel
type writeOp struct {
	opType   writeOpType
	data     interface{}
	response chan writeResult
}

type writeResult struct {
	err error
	n   int64 // inserted id or affected rows
}

// writeQueue serializes database writes through one goroutine
type writeQueue struct {
	queue  chan writeOp
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    logrus.FieldLogger
}

func newWriteQueue(db *Store, log logrus.FieldLogger) *writeQueue {
	ctx, cancel := context.WithCancel(context.Background())
	wq := &writeQueue{
		queue:  make(chan writeOp, 100),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}

	go wq.processQueue(db)
	return wq
}

// processQueue is the single writer
func (wq *writeQueue) processQueue(db *Store) {
	defer close(wq.done)

	for {
		select {
		case <-wq.ctx.Done():
			// Drain remaining operations before shutting down
			for {
				select {
				case op := <-wq.queue:
					wq.executeOp(db, op)
				default:
					wq.log.Debug("[WRITE QUEUE] Shutdown complete")
					return
				}
			}

		case op := <-wq.queue:
			wq.executeOp(db, op)
		}
	}
}

func (wq *writeQueue) executeOp(db *Store, op writeOp) {
	var result writeResult

	switch op.opType {
	case opCreateRun:
		result.n, result.err = db.createRunDirect(op.data.(*model.Run))
	case opUpdateRun:
		result.n, result.err = db.updateRunDirect(op.data.(*model.Run))
	case opPruneRuns:
		result.n, result.err = db.pruneRunsDirect(op.data.(time.Time))
	default:
		result.err = fmt.Errorf("unknown write op %d", op.opType)
	}

	op.response <- result
}

func (wq *writeQueue) enqueue(ctx context.Context, opType writeOpType, data interface{}) error {
	_, err := wq.enqueueResult(ctx, opType, data)
	return err
}

// enqueueResult queues a write and waits for its result
func (wq *writeQueue) enqueueResult(ctx context.Context, opType writeOpType, data interface{}) (int64, error) {
	response := make(chan writeResult, 1)
	op := writeOp{opType: opType, data: data, response: response}

	select {
	case wq.queue <- op:
	case <-wq.ctx.Done():
		return 0, wq.ctx.Err()
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case result := <-response:
		return result.n, result.err
	case <-wq.done:
		select {
		case result := <-response:
			return result.n, result.err
		default:
			return 0, errQueueClosed
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// shutdown stops accepting writes and waits for queued ones to finish
func (wq *writeQueue) shutdown() {
	wq.log.Debug("[WRITE QUEUE] Shutting down...")
	wq.cancel()
	<-wq.done
}
