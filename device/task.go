package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-converse/logger"
)

// TaskFunc is run by the TaskManager. It returns false to stop its goroutine.
type TaskFunc func(ctx context.Context) bool

// TaskManager runs named interval tasks and waits for them to terminate.
type TaskManager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*time.Ticker
	mu      sync.RWMutex // protect ctx and cancel
}

// NewTaskManager creates a TaskManager whose tasks stop when ctx is done.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *TaskManager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// StartInterval starts a goroutine that runs taskFunc every interval. With
// runNow the first run happens as soon as the goroutine starts.
func (mgr *TaskManager) StartInterval(name string, taskFunc TaskFunc, interval time.Duration, runNow bool) error {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return fmt.Errorf("device: invalid interval: %v", interval)
	}

	ctx := mgr.getContext()
	if ctx.Err() != nil {
		return fmt.Errorf("device: task manager already stopped")
	}

	ticker := time.NewTicker(interval)
	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return fmt.Errorf("device: interval task %s already exists", name)
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)
	go func() {
		defer func() {
			ticker.Stop()
			mgr.tickers.Delete(name)
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug("interval task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		if runNow && !mgr.callWithRecover(ctx, name, taskFunc) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(ctx, name, taskFunc) {
					return
				}
			}
		}
	}()

	return nil
}

// callWithRecover runs fn, logging and surviving a panic.
func (mgr *TaskManager) callWithRecover(ctx context.Context, name string, fn TaskFunc) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = true
		}
	}()

	return fn(ctx)
}

// Stop signals all running tasks.
func (mgr *TaskManager) Stop() {
	mgr.tickers.Range(func(_, value any) bool {
		if ticker, ok := value.(*time.Ticker); ok {
			ticker.Stop()
		}

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all tasks to terminate and re-arms the manager.
func (mgr *TaskManager) Wait() {
	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of running tasks.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}
