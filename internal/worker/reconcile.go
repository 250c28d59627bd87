package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/queue"
	"github.com/licenseshop/internal/service"

	"github.com/hibiken/asynq"
)

// OpenOrderReconciler 未完成订单对账
type OpenOrderReconciler interface {
	ReconcileOpen(ctx context.Context) ([]service.ReconcileResult, error)
	OpenInvoicedOrderIDs(ctx context.Context) ([]string, error)
}

// ReconcileDispatcher 把单个订单的对账交给队列
type ReconcileDispatcher interface {
	Enabled() bool
	EnqueueOrderReconcile(payload queue.OrderReconcilePayload, opts ...asynq.Option) error
}

// ReconcileOption 对账循环选项
type ReconcileOption func(*ReconcileLoop)

// WithDispatcher 队列可用时按订单投递任务，由消费者并发处理
func WithDispatcher(dispatcher ReconcileDispatcher) ReconcileOption {
	return func(l *ReconcileLoop) {
		l.dispatcher = dispatcher
	}
}

// ReconcileLoop 定期对带发票的未完成订单重新查询 PayPal 状态，
// 补上轮询超时或进程重启后漏掉的付款。
type ReconcileLoop struct {
	reconciler OpenOrderReconciler
	dispatcher ReconcileDispatcher
	interval   time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewReconcileLoop 创建对账循环
func NewReconcileLoop(reconciler OpenOrderReconciler, interval time.Duration, opts ...ReconcileOption) (*ReconcileLoop, error) {
	if reconciler == nil {
		return nil, errors.New("reconciler is nil")
	}
	if interval <= 0 {
		return nil, errors.New("reconcile interval must be positive")
	}
	l := &ReconcileLoop{
		reconciler: reconciler,
		interval:   interval,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Name 服务名称
func (l *ReconcileLoop) Name() string {
	return "reconcile"
}

// Start 阻塞运行直到 ctx 结束或 Stop
func (l *ReconcileLoop) Start(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.stop:
			return nil
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// Stop 停止循环
func (l *ReconcileLoop) Stop(ctx context.Context) error {
	_ = ctx
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

// RunOnce 执行一轮对账，返回完成付款的订单数；投递到队列时返回 0
func (l *ReconcileLoop) RunOnce(ctx context.Context) int {
	if l.dispatcher != nil && l.dispatcher.Enabled() {
		l.dispatch(ctx)
		return 0
	}
	results, err := l.reconciler.ReconcileOpen(ctx)
	if err != nil {
		logger.Warnw("worker_reconcile_open_failed", "error", err)
	}
	finalized, failed := 0, 0
	for _, result := range results {
		if result.Error != "" {
			failed++
			continue
		}
		if result.Finalized {
			finalized++
		}
	}
	if len(results) > 0 {
		logger.Infow("worker_reconcile_open_done", "checked", len(results), "finalized", finalized, "failed", failed)
	}
	return finalized
}

func (l *ReconcileLoop) dispatch(ctx context.Context) {
	ids, err := l.reconciler.OpenInvoicedOrderIDs(ctx)
	if err != nil {
		logger.Warnw("worker_reconcile_list_failed", "error", err)
		return
	}
	enqueued := 0
	for _, id := range ids {
		err := l.dispatcher.EnqueueOrderReconcile(
			queue.OrderReconcilePayload{OrderID: id},
			asynq.TaskID(fmt.Sprintf("reconcile:%s", id)),
		)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, asynq.ErrTaskIDConflict):
			// 上一轮的任务仍在队列中
		default:
			logger.Warnw("worker_reconcile_enqueue_failed", "order_id", id, "error", err)
		}
	}
	if enqueued > 0 {
		logger.Infow("worker_reconcile_dispatched", "open", len(ids), "enqueued", enqueued)
	}
}
