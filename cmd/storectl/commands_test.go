package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsole struct {
	lastQuery  service.ListQuery
	orders     []models.Order
	reconciled []string
	openRuns   int
}

func (f *fakeConsole) List(_ context.Context, query service.ListQuery) ([]models.Order, int64, error) {
	f.lastQuery = query
	return f.orders, int64(len(f.orders)), nil
}

func (f *fakeConsole) TabCounts(context.Context) (map[string]int64, error) {
	return map[string]int64{constants.OrderTabAll: 3, constants.OrderTabAbandoned: 1, constants.OrderTabPending: 1, constants.OrderTabDelivered: 1}, nil
}

func (f *fakeConsole) Reconcile(_ context.Context, id string) (*service.ReconcileResult, error) {
	if id == "missing" {
		return nil, service.ErrOrderNotFound
	}
	f.reconciled = append(f.reconciled, id)
	return &service.ReconcileResult{OrderID: id, OrderNumber: "LS-" + id, InvoiceID: "INV2-1", InvoiceStatus: constants.InvoiceStatusPaid, PaymentStatus: constants.PaymentStatusCompleted, Finalized: true}, nil
}

func (f *fakeConsole) ReconcileOpen(context.Context) ([]service.ReconcileResult, error) {
	f.openRuns++
	return []service.ReconcileResult{
		{OrderNumber: "LS-1", InvoiceID: "INV2-1", InvoiceStatus: constants.InvoiceStatusPaid, PaymentStatus: constants.PaymentStatusCompleted, Finalized: true},
		{OrderNumber: "LS-2", InvoiceID: "INV2-2", Error: "gateway timeout", PaymentStatus: constants.PaymentStatusPending},
	}, nil
}

type fakeInvoices struct{}

func (fakeInvoices) GetInvoiceStatus(_ context.Context, id string) (string, error) {
	if id == "INV2-404" {
		return "", service.ErrNotFound
	}
	return constants.InvoiceStatusPaid, nil
}

func runCLI(t *testing.T, console *fakeConsole, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func() (*deps, func(), error) {
		return &deps{orders: console, invoices: fakeInvoices{}}, nil, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestOrdersListPassesTab(t *testing.T) {
	console := &fakeConsole{orders: []models.Order{{
		OrderNumber:    "LS20260301000001",
		CustomerEmail:  "buyer@example.com",
		Total:          models.NewMoneyFromFloat(49.5),
		Currency:       "USD",
		PaymentStatus:  constants.PaymentStatusAbandoned,
		DeliveryStatus: constants.DeliveryStatusPending,
	}}}

	out, err := runCLI(t, console, "", "orders", "list", "--tab", "abandoned", "--email", "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderTabAbandoned, console.lastQuery.Tab)
	assert.Equal(t, "buyer@example.com", console.lastQuery.Email)
	assert.Contains(t, out, "LS20260301000001")
	assert.Contains(t, out, "49.50 USD")
	assert.Contains(t, out, "all=3 abandoned=1")
}

func TestOrdersReconcile(t *testing.T) {
	console := &fakeConsole{}

	out, err := runCLI(t, console, "", "orders", "reconcile", "ord_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ord_1"}, console.reconciled)
	assert.Contains(t, out, "finalized=true")

	out, err = runCLI(t, console, "", "orders", "reconcile", "--all-pending")
	require.NoError(t, err)
	assert.Equal(t, 1, console.openRuns)
	assert.Contains(t, out, "checked 2 open orders, 1 marked paid")
	assert.Contains(t, out, "error=gateway timeout")

	_, err = runCLI(t, console, "", "orders", "reconcile")
	require.Error(t, err)
	_, err = runCLI(t, console, "", "orders", "reconcile", "ord_1", "--all-pending")
	require.Error(t, err)

	_, err = runCLI(t, console, "", "orders", "reconcile", "missing")
	assert.True(t, errors.Is(err, service.ErrOrderNotFound))
}

func TestInvoiceStatus(t *testing.T) {
	out, err := runCLI(t, &fakeConsole{}, "", "invoice", "status", "INV2-1")
	require.NoError(t, err)
	assert.Equal(t, constants.InvoiceStatusPaid+"\n", out)

	_, err = runCLI(t, &fakeConsole{}, "", "invoice", "status", "INV2-404")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestAdminHashPasswordFromStdin(t *testing.T) {
	out, err := runCLI(t, &fakeConsole{}, "s3cret-pass\n", "admin", "hash-password")
	require.NoError(t, err)
	hashed := strings.TrimSpace(out)
	require.NoError(t, service.VerifyPassword(hashed, "s3cret-pass"))

	_, err = runCLI(t, &fakeConsole{}, "", "admin", "hash-password")
	assert.Error(t, err)
}
