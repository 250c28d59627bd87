package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/licenseshop/internal/cache"
	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/metrics"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/queue"
)

// InvoiceStatusReader 查询发票归一化状态
type InvoiceStatusReader interface {
	GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error)
}

// PollOutcome 轮询结果
type PollOutcome struct {
	Status        string    `json:"status"`
	OrderID       string    `json:"order_id"`
	InvoiceID     string    `json:"invoice_id"`
	InvoiceStatus string    `json:"invoice_status,omitempty"`
	Attempts      int       `json:"attempts"`
	Deadline      time.Time `json:"deadline"`
	ClearCart     bool      `json:"clear_cart,omitempty"`
	Redirect      string    `json:"redirect,omitempty"`
}

// PollerOptions 轮询参数
type PollerOptions struct {
	Interval     time.Duration
	Timeout      time.Duration
	ThankYouPath string
}

// Poller 发票状态轮询器。同一 CheckOnce 步骤由进程内 goroutine
// 或 asynq 自我重投任务驱动，二者按队列是否启用择一。
type Poller struct {
	store       *cache.PollStore
	invoices    InvoiceStatusReader
	orderSvc    *OrderService
	queueClient *queue.Client
	metrics     *metrics.Metrics
	opts        PollerOptions
	now         func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running map[string]*pollRunner
	wg      sync.WaitGroup
}

type pollRunner struct {
	cancel context.CancelFunc
}

// NewPoller 创建轮询器
func NewPoller(store *cache.PollStore, invoices InvoiceStatusReader, orderSvc *OrderService, queueClient *queue.Client, m *metrics.Metrics, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultPollInterval * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultPollTimeout * time.Minute
	}
	if strings.TrimSpace(opts.ThankYouPath) == "" {
		opts.ThankYouPath = "/thank-you"
	}
	if store == nil {
		store = cache.NewPollStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		store:       store,
		invoices:    invoices,
		orderSvc:    orderSvc,
		queueClient: queueClient,
		metrics:     m,
		opts:        opts,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		running:     make(map[string]*pollRunner),
	}
}

// Start 为订单发票开启轮询；同一发票已有活动轮询时返回其当前状态
func (p *Poller) Start(ctx context.Context, orderID, invoiceID string) (*PollOutcome, error) {
	orderID, invoiceID = strings.TrimSpace(orderID), strings.TrimSpace(invoiceID)
	if orderID == "" || invoiceID == "" {
		return nil, ErrInvoiceMissing
	}
	acquired, err := p.store.Acquire(ctx, invoiceID, p.opts.Timeout+p.opts.Interval)
	if err != nil {
		return nil, err
	}
	if !acquired {
		existing, err := p.store.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.InvoiceID == invoiceID {
			p.ensureRunner(*existing)
			return p.outcome(existing), nil
		}
		logger.Warnw("poll_lock_held_without_session", "order_id", orderID, "invoice_id", invoiceID)
	}

	now := p.now()
	session := cache.PollSession{
		OrderID:   orderID,
		InvoiceID: invoiceID,
		StartedAt: now,
		Deadline:  now.Add(p.opts.Timeout),
		State:     constants.PollStateActive,
	}
	if err := p.store.Save(ctx, session); err != nil {
		_ = p.store.Release(ctx, invoiceID)
		return nil, err
	}
	logger.Infow("poll_started", "order_id", orderID, "invoice_id", invoiceID, "deadline", session.Deadline)
	if err := p.schedule(session); err != nil {
		_ = p.store.Release(ctx, invoiceID)
		return nil, err
	}
	return p.outcome(&session), nil
}

// Status 读取轮询状态；活动会话在本进程无执行者时重新接管
func (p *Poller) Status(ctx context.Context, orderID string) (*PollOutcome, error) {
	session, err := p.store.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrPollNotFound
	}
	if session.State == constants.PollStateActive {
		p.ensureRunner(*session)
	}
	return p.outcome(session), nil
}

// CheckOnce 执行一次状态检查
func (p *Poller) CheckOnce(ctx context.Context, orderID string) (*PollOutcome, error) {
	session, err := p.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrPollNotFound
	}
	if session.State != constants.PollStateActive {
		return p.outcome(session), nil
	}
	if !p.now().Before(session.Deadline) {
		return p.finish(ctx, session, constants.PollStateTimeout)
	}

	session.Attempts++
	status, err := p.invoices.GetInvoiceStatus(ctx, session.InvoiceID)
	if err != nil {
		// 查询失败视为暂时性错误，继续等待下一轮
		logger.Warnw("poll_status_failed",
			"order_id", session.OrderID,
			"invoice_id", session.InvoiceID,
			"attempt", session.Attempts,
			"error", err,
		)
		if saveErr := p.store.Save(ctx, *session); saveErr != nil {
			return nil, saveErr
		}
		return p.outcome(session), nil
	}
	session.LastStatus = status
	if status != constants.InvoiceStatusPaid {
		if err := p.store.Save(ctx, *session); err != nil {
			return nil, err
		}
		return p.outcome(session), nil
	}

	order, err := p.orderSvc.Get(ctx, session.OrderID)
	if err != nil {
		logger.Errorw("poll_order_load_failed", "order_id", session.OrderID, "invoice_id", session.InvoiceID, "error", err)
		if errors.Is(err, ErrOrderNotFound) {
			return p.finish(ctx, session, constants.PollStateFailed)
		}
		if saveErr := p.store.Save(ctx, *session); saveErr != nil {
			return nil, saveErr
		}
		return p.outcome(session), nil
	}
	// 只有订单当前绑定的发票才能确认付款
	if order.InvoiceID != session.InvoiceID {
		logger.Warnw("poll_invoice_superseded",
			"order_id", session.OrderID,
			"invoice_id", session.InvoiceID,
			"current_invoice_id", order.InvoiceID,
			"invoice_status", status,
		)
		return p.finish(ctx, session, constants.PollStateSuperseded)
	}

	details := models.JSON{
		"source":         "poll",
		"invoice_id":     session.InvoiceID,
		"invoice_status": constants.PaypalInvoiceStatusPaid,
		"paid_at":        p.now().UTC().Format(time.RFC3339),
	}
	if _, _, err := p.orderSvc.finalize(ctx, order, details); err != nil {
		logger.Errorw("poll_finalize_failed", "order_id", session.OrderID, "invoice_id", session.InvoiceID, "error", err)
		if errors.Is(err, ErrOrderStatusInvalid) || errors.Is(err, ErrOrderNotFound) {
			return p.finish(ctx, session, constants.PollStateFailed)
		}
		if saveErr := p.store.Save(ctx, *session); saveErr != nil {
			return nil, saveErr
		}
		return p.outcome(session), nil
	}
	return p.finish(ctx, session, constants.PollStatePaid)
}

// HandleTask asynq 任务入口：检查一次，未结束时按间隔重新入队。
// 订单换票后旧任务链在此终止，会话由新发票的任务链接管。
func (p *Poller) HandleTask(ctx context.Context, payload queue.InvoicePollPayload) error {
	if payload.InvoiceID != "" {
		session, err := p.store.Get(ctx, payload.OrderID)
		if err != nil {
			return err
		}
		if session != nil && session.InvoiceID != payload.InvoiceID {
			logger.Infow("poll_task_stale",
				"order_id", payload.OrderID,
				"invoice_id", payload.InvoiceID,
				"current_invoice_id", session.InvoiceID,
			)
			return nil
		}
	}
	outcome, err := p.CheckOnce(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, ErrPollNotFound) {
			logger.Warnw("poll_task_session_missing", "order_id", payload.OrderID, "invoice_id", payload.InvoiceID)
			return nil
		}
		return err
	}
	if outcome.Status != constants.PollStateActive {
		return nil
	}
	return p.queueClient.EnqueueInvoicePoll(payload, p.opts.Interval)
}

// Supersede 结束指定发票的活动轮询，用于订单发票失效；会话已属于其他发票时不做处理
func (p *Poller) Supersede(ctx context.Context, orderID, invoiceID string) error {
	if p == nil {
		return nil
	}
	session, err := p.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if session == nil || session.InvoiceID != invoiceID || session.State != constants.PollStateActive {
		return nil
	}
	p.mu.Lock()
	if runner, ok := p.running[orderID]; ok {
		runner.cancel()
		delete(p.running, orderID)
	}
	p.mu.Unlock()
	_, err = p.finish(ctx, session, constants.PollStateSuperseded)
	return err
}

// Stop 取消所有进程内轮询并等待退出
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Running 本进程内正在执行的轮询数
func (p *Poller) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

func (p *Poller) schedule(session cache.PollSession) error {
	if p.queueClient.Enabled() {
		return p.queueClient.EnqueueInvoicePoll(queue.InvoicePollPayload{
			OrderID:   session.OrderID,
			InvoiceID: session.InvoiceID,
			Deadline:  session.Deadline,
		}, p.opts.Interval)
	}
	p.spawn(session.OrderID)
	return nil
}

// ensureRunner 进程内模式下，活动会话缺少执行者时补启动
func (p *Poller) ensureRunner(session cache.PollSession) {
	if p.queueClient.Enabled() {
		return
	}
	p.spawn(session.OrderID)
}

func (p *Poller) spawn(orderID string) {
	p.mu.Lock()
	if _, ok := p.running[orderID]; ok || p.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(p.ctx)
	runner := &pollRunner{cancel: cancel}
	p.running[orderID] = runner
	p.wg.Add(1)
	p.mu.Unlock()

	p.metrics.PollStarted()
	go func() {
		defer func() {
			p.mu.Lock()
			if p.running[orderID] == runner {
				delete(p.running, orderID)
			}
			p.mu.Unlock()
			cancel()
			p.metrics.PollStopped()
			p.wg.Done()
		}()
		p.run(ctx, orderID)
	}()
}

func (p *Poller) run(ctx context.Context, orderID string) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome, err := p.CheckOnce(ctx, orderID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warnw("poll_check_failed", "order_id", orderID, "error", err)
				if errors.Is(err, ErrPollNotFound) {
					return
				}
				continue
			}
			if outcome.Status != constants.PollStateActive {
				return
			}
		}
	}
}

func (p *Poller) finish(ctx context.Context, session *cache.PollSession, state string) (*PollOutcome, error) {
	session.State = state
	if err := p.store.Save(ctx, *session); err != nil {
		return nil, err
	}
	if err := p.store.Release(ctx, session.InvoiceID); err != nil {
		logger.Warnw("poll_lock_release_failed", "invoice_id", session.InvoiceID, "error", err)
	}
	p.metrics.PollOutcome(state)
	logger.Infow("poll_finished",
		"order_id", session.OrderID,
		"invoice_id", session.InvoiceID,
		"state", state,
		"attempts", session.Attempts,
	)
	return p.outcome(session), nil
}

func (p *Poller) outcome(session *cache.PollSession) *PollOutcome {
	out := &PollOutcome{
		Status:        session.State,
		OrderID:       session.OrderID,
		InvoiceID:     session.InvoiceID,
		InvoiceStatus: session.LastStatus,
		Attempts:      session.Attempts,
		Deadline:      session.Deadline,
	}
	if session.State == constants.PollStatePaid {
		out.ClearCart = true
		out.Redirect = p.opts.ThankYouPath
	}
	return out
}
