package service

import (
	"strings"

	"github.com/licenseshop/internal/constants"
)

var paymentTransitions = map[string]map[string]bool{
	constants.PaymentStatusAbandoned: {
		constants.PaymentStatusPending:   true,
		constants.PaymentStatusCompleted: true,
		constants.PaymentStatusFailed:    true,
	},
	constants.PaymentStatusPending: {
		constants.PaymentStatusCompleted: true,
		constants.PaymentStatusFailed:    true,
		constants.PaymentStatusAbandoned: true,
	},
	constants.PaymentStatusCompleted: {
		constants.PaymentStatusRefunded: true,
		constants.PaymentStatusFailed:   true,
	},
	constants.PaymentStatusFailed: {
		constants.PaymentStatusPending: true,
	},
}

var deliveryTransitions = map[string]map[string]bool{
	constants.DeliveryStatusPending: {
		constants.DeliveryStatusDelivered: true,
		constants.DeliveryStatusFailed:    true,
	},
	constants.DeliveryStatusFailed: {
		constants.DeliveryStatusPending: true,
	},
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsValidPaymentStatus 判断支付状态是否合法
func IsValidPaymentStatus(status string) bool {
	switch normalizeStatus(status) {
	case constants.PaymentStatusAbandoned,
		constants.PaymentStatusPending,
		constants.PaymentStatusCompleted,
		constants.PaymentStatusFailed,
		constants.PaymentStatusRefunded:
		return true
	}
	return false
}

// IsValidDeliveryStatus 判断交付状态是否合法
func IsValidDeliveryStatus(status string) bool {
	switch normalizeStatus(status) {
	case constants.DeliveryStatusPending, constants.DeliveryStatusDelivered, constants.DeliveryStatusFailed:
		return true
	}
	return false
}

// CanTransitionPayment 相同状态视为无变化，允许通过
func CanTransitionPayment(from, to string) bool {
	return canTransition(paymentTransitions, from, to)
}

// CanTransitionDelivery 判断交付状态流转
func CanTransitionDelivery(from, to string) bool {
	return canTransition(deliveryTransitions, from, to)
}

func canTransition(table map[string]map[string]bool, from, to string) bool {
	from, to = normalizeStatus(from), normalizeStatus(to)
	if from == to {
		return true
	}
	return table[from][to]
}

// isOpenPaymentStatus 未进入终态的订单
func isOpenPaymentStatus(status string) bool {
	switch normalizeStatus(status) {
	case constants.PaymentStatusAbandoned, constants.PaymentStatusPending:
		return true
	}
	return false
}

// OrderTabStatuses 管理端分组对应的过滤条件
func OrderTabStatuses(tab string) (paymentStatuses []string, deliveryStatus string, ok bool) {
	switch normalizeStatus(tab) {
	case "", constants.OrderTabAll:
		return nil, "", true
	case constants.OrderTabAbandoned:
		return []string{constants.PaymentStatusAbandoned}, "", true
	case constants.OrderTabPending:
		return []string{constants.PaymentStatusCompleted}, constants.DeliveryStatusPending, true
	case constants.OrderTabDelivered:
		return nil, constants.DeliveryStatusDelivered, true
	}
	return nil, "", false
}
