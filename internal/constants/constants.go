package constants

// 支付状态常量
const (
	PaymentStatusAbandoned = "abandoned"
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// 交付状态常量
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

// 发票状态常量（对外暴露的归一化结果）
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusTimeout = "timeout"
)

// PayPal 原始发票状态
const (
	PaypalInvoiceStatusPaymentPending = "PAYMENT_PENDING"
	PaypalInvoiceStatusPaid           = "PAID"
	PaypalInvoiceStatusMarkedAsPaid   = "MARKED_AS_PAID"
)

// PayPal 运行模式
const (
	PaypalModeSandbox = "sandbox"
	PaypalModeLive    = "live"
)

// 存储后端
const (
	StoreBackendPocketBase = "pocketbase"
	StoreBackendSQL        = "sql"
)

// PocketBase 集合名称默认值
const (
	CollectionOrders   = "store_orders"
	CollectionProducts = "store_products"
	CollectionUsers    = "store_users"
	CollectionConfig   = "store_config"
)

// 管理端订单分组
const (
	OrderTabAll       = "all"
	OrderTabAbandoned = "abandoned"
	OrderTabPending   = "pending"
	OrderTabDelivered = "delivered"
)

// 轮询会话状态
const (
	PollStateActive  = "active"
	PollStatePaid    = "paid"
	PollStateTimeout = "timeout"
	PollStateFailed  = "failed"
	// PollStateSuperseded 订单已换票或发票已失效
	PollStateSuperseded = "superseded"
)

// 邮件类型
const (
	MailKindOrderConfirmation = "order_confirmation"
	MailKindDelivery          = "delivery"
	MailKindAbandonedRecovery = "abandoned_recovery"
	MailKindRefund            = "refund"
)

// 异步任务类型
const (
	TaskInvoicePoll      = "invoice:poll"
	TaskOrderMail        = "order:mail"
	TaskOrderReconcile   = "order:reconcile"
	QueueDefault         = "default"
	QueueCritical        = "critical"
	DefaultPollInterval  = 3
	DefaultPollTimeout   = 10
	DefaultAdminListSize = 500
)

// 订单事件
const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventOrderPaid      = "order.paid"
	EventOrderDelivered = "order.delivered"
	EventOrderRefunded  = "order.refunded"
	EventOrderRecovered = "order.recovered"
)

// 设置键
const (
	SettingKeyStoreConfig = "store_config"
)

// 默认币种
const (
	SiteCurrencyDefault = "USD"
)

// 管理员角色
const (
	StoreUserRoleAdmin    = "admin"
	StoreUserRoleCustomer = "customer"
)
