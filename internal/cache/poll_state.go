package cache

import (
	"context"
	"sync"
	"time"
)

// 轮询会话结束后的保留时长，便于页面刷新后读取结果
const pollSessionRetention = time.Hour

// 进程内存储的过期清理间隔
const pollSweepInterval = time.Minute

// PollSession 发票状态轮询会话
type PollSession struct {
	OrderID    string    `json:"order_id"`
	InvoiceID  string    `json:"invoice_id"`
	StartedAt  time.Time `json:"started_at"`
	Deadline   time.Time `json:"deadline"`
	Attempts   int       `json:"attempts"`
	State      string    `json:"state"`
	LastStatus string    `json:"last_status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func pollSessionKey(orderID string) string {
	return "poll:order:" + orderID
}

func pollLockKey(invoiceID string) string {
	return "poll:lock:" + invoiceID
}

// PollStore 轮询会话存储，Redis 启用时持久化，否则保存在进程内
type PollStore struct {
	mu        sync.Mutex
	sessions  map[string]PollSession
	locks     map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewPollStore 创建轮询会话存储
func NewPollStore() *PollStore {
	return &PollStore{
		sessions: make(map[string]PollSession),
		locks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// Save 保存会话
func (s *PollStore) Save(ctx context.Context, session PollSession) error {
	session.UpdatedAt = s.now()
	if Enabled() {
		ttl := session.Deadline.Sub(s.now()) + pollSessionRetention
		if ttl <= 0 {
			ttl = pollSessionRetention
		}
		return SetJSON(ctx, pollSessionKey(session.OrderID), session, ttl)
	}
	s.mu.Lock()
	s.sessions[session.OrderID] = session
	s.sweepLocked()
	s.mu.Unlock()
	return nil
}

// sweepLocked 清理超过保留期的会话和过期锁，调用方持有 mu
func (s *PollStore) sweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < pollSweepInterval {
		return
	}
	s.lastSweep = now
	for orderID, session := range s.sessions {
		if now.After(session.Deadline.Add(pollSessionRetention)) {
			delete(s.sessions, orderID)
		}
	}
	for invoiceID, until := range s.locks {
		if !now.Before(until) {
			delete(s.locks, invoiceID)
		}
	}
}

// Get 读取会话，不存在时返回 nil
func (s *PollStore) Get(ctx context.Context, orderID string) (*PollSession, error) {
	if Enabled() {
		var session PollSession
		found, err := GetJSON(ctx, pollSessionKey(orderID), &session)
		if err != nil || !found {
			return nil, err
		}
		return &session, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return nil, nil
	}
	if s.now().After(session.Deadline.Add(pollSessionRetention)) {
		delete(s.sessions, orderID)
		return nil, nil
	}
	return &session, nil
}

// Acquire 获取发票轮询锁，同一发票同时只允许一个轮询
func (s *PollStore) Acquire(ctx context.Context, invoiceID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if Enabled() {
		return SetNX(ctx, pollLockKey(invoiceID), s.now().Unix(), ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, ok := s.locks[invoiceID]; ok && s.now().Before(until) {
		return false, nil
	}
	s.locks[invoiceID] = s.now().Add(ttl)
	return true, nil
}

// Release 释放发票轮询锁
func (s *PollStore) Release(ctx context.Context, invoiceID string) error {
	if Enabled() {
		return Del(ctx, pollLockKey(invoiceID))
	}
	s.mu.Lock()
	delete(s.locks, invoiceID)
	s.mu.Unlock()
	return nil
}
