package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/service"

	"github.com/spf13/cobra"
)

type orderConsole interface {
	List(ctx context.Context, query service.ListQuery) ([]models.Order, int64, error)
	TabCounts(ctx context.Context) (map[string]int64, error)
	Reconcile(ctx context.Context, id string) (*service.ReconcileResult, error)
	ReconcileOpen(ctx context.Context) ([]service.ReconcileResult, error)
}

type invoiceChecker interface {
	GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error)
}

type deps struct {
	orders   orderConsole
	invoices invoiceChecker
}

type depsLoader func() (*deps, func(), error)

func newRootCmd(load depsLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Operate the license shop backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newOrdersCmd(load), newInvoiceCmd(load), newAdminCmd())
	return root
}

// withDeps 延迟初始化依赖，只有需要后端的命令才连接存储
func withDeps(load depsLoader, fn func(cmd *cobra.Command, args []string, d *deps) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, closeFn, err := load()
		if err != nil {
			return fmt.Errorf("init backend: %w", err)
		}
		if closeFn != nil {
			defer closeFn()
		}
		return fn(cmd, args, d)
	}
}

func newOrdersCmd(load depsLoader) *cobra.Command {
	cmd := &cobra.Command{Use: "orders", Short: "Inspect and reconcile orders"}

	var tab, email string
	var page, pageSize int
	list := &cobra.Command{
		Use:   "list",
		Short: "List orders by tab",
		Args:  cobra.NoArgs,
		RunE: withDeps(load, func(cmd *cobra.Command, _ []string, d *deps) error {
			ctx := cmd.Context()
			orders, total, err := d.orders.List(ctx, service.ListQuery{Tab: tab, Page: page, PageSize: pageSize, Email: email})
			if err != nil {
				return err
			}
			counts, err := d.orders.TabCounts(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tEMAIL\tTOTAL\tPAYMENT\tDELIVERY\tINVOICE\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\t%s\n",
					o.OrderNumber, o.CustomerEmail, o.Total.String(), o.Currency,
					o.PaymentStatus, o.DeliveryStatus, dash(o.InvoiceID), o.CreatedAt.Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d shown | all=%d abandoned=%d pending=%d delivered=%d\n",
				len(orders), total,
				counts[constants.OrderTabAll], counts[constants.OrderTabAbandoned],
				counts[constants.OrderTabPending], counts[constants.OrderTabDelivered])
			return nil
		}),
	}
	list.Flags().StringVar(&tab, "tab", constants.OrderTabAll, "all, abandoned, pending or delivered")
	list.Flags().StringVar(&email, "email", "", "filter by customer email")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&pageSize, "page-size", 50, "orders per page (max 500)")

	var allPending bool
	reconcile := &cobra.Command{
		Use:   "reconcile [order-id]",
		Short: "Re-check PayPal invoice status for an order or every open order",
		Args: func(cmd *cobra.Command, args []string) error {
			if allPending && len(args) > 0 {
				return errors.New("pass either an order id or --all-pending, not both")
			}
			if !allPending && len(args) != 1 {
				return errors.New("an order id or --all-pending is required")
			}
			return nil
		},
		RunE: withDeps(load, func(cmd *cobra.Command, args []string, d *deps) error {
			out := cmd.OutOrStdout()
			if !allPending {
				result, err := d.orders.Reconcile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printReconcile(out, *result)
				return nil
			}
			results, err := d.orders.ReconcileOpen(cmd.Context())
			if err != nil {
				return err
			}
			finalized := 0
			for _, result := range results {
				printReconcile(out, result)
				if result.Finalized {
					finalized++
				}
			}
			fmt.Fprintf(out, "checked %d open orders, %d marked paid\n", len(results), finalized)
			return nil
		}),
	}
	reconcile.Flags().BoolVar(&allPending, "all-pending", false, "reconcile every open order with an invoice")

	cmd.AddCommand(list, reconcile)
	return cmd
}

func newInvoiceCmd(load depsLoader) *cobra.Command {
	cmd := &cobra.Command{Use: "invoice", Short: "Query PayPal invoices"}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <invoice-id>",
		Short: "Print the PayPal status of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: withDeps(load, func(cmd *cobra.Command, args []string, d *deps) error {
			status, err := d.invoices.GetInvoiceStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		}),
	})
	return cmd
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Admin account helpers"}
	var password string
	hash := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for admin.password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("password is empty")
			}
			hashed, err := service.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}
	hash.Flags().StringVar(&password, "password", "", "password to hash (read from stdin when empty)")
	cmd.AddCommand(hash)
	return cmd
}

func printReconcile(out io.Writer, result service.ReconcileResult) {
	line := fmt.Sprintf("%s invoice=%s status=%s payment=%s finalized=%t",
		result.OrderNumber, dash(result.InvoiceID), dash(result.InvoiceStatus), result.PaymentStatus, result.Finalized)
	if result.Error != "" {
		line += " error=" + result.Error
	}
	fmt.Fprintln(out, line)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
