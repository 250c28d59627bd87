package queue

import (
	"encoding/json"
	"time"

	"github.com/licenseshop/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskInvoicePoll 发票状态轮询任务
	TaskInvoicePoll = constants.TaskInvoicePoll
	// TaskOrderMail 订单通知邮件任务
	TaskOrderMail = constants.TaskOrderMail
	// TaskOrderReconcile 订单对账任务
	TaskOrderReconcile = constants.TaskOrderReconcile
)

// InvoicePollPayload 发票轮询任务载荷
type InvoicePollPayload struct {
	OrderID   string    `json:"order_id"`
	InvoiceID string    `json:"invoice_id"`
	Deadline  time.Time `json:"deadline"`
}

// OrderMailPayload 订单邮件任务载荷
type OrderMailPayload struct {
	OrderID      string            `json:"order_id"`
	Kind         string            `json:"kind"`
	Deliverables map[string]string `json:"deliverables,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// OrderReconcilePayload 订单对账任务载荷
type OrderReconcilePayload struct {
	OrderID string `json:"order_id"`
}

// NewInvoicePollTask 创建发票轮询任务
func NewInvoicePollTask(payload InvoicePollPayload) (*asynq.Task, error) {
	return newTask(TaskInvoicePoll, payload)
}

// NewOrderMailTask 创建订单邮件任务
func NewOrderMailTask(payload OrderMailPayload) (*asynq.Task, error) {
	return newTask(TaskOrderMail, payload)
}

// NewOrderReconcileTask 创建订单对账任务
func NewOrderReconcileTask(payload OrderReconcilePayload) (*asynq.Task, error) {
	return newTask(TaskOrderReconcile, payload)
}

func newTask(name string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body), nil
}
