package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page            int
	PageSize        int
	PaymentStatuses []string
	DeliveryStatus  string
	CustomerEmail   string
	OnlyWithInvoice bool
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// ProductListFilter 查询商品列表的过滤条件
type ProductListFilter struct {
	Page       int
	PageSize   int
	Search     string
	OnlyActive bool
}

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page     int
	PageSize int
	Search   string
	Role     string
}
