package cmd

import (
	"fmt"
	"strconv"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/spf13/cobra"
)

func newOrdersCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders, check out and cancel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.visit("/orders"); err != nil {
				return err
			}
			if _, err := a.orders.Fetch(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", a.orders.Error(), err)
			}
			list := a.orders.Orders()
			if status != "" {
				list = a.orders.ByStatus(api.OrderStatus(status))
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No orders")
				return nil
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tITEMS\tTOTAL")
			for _, o := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					o.ID, o.Status, o.CreatedAt.Format("2006-01-02 15:04"), len(o.Items), formatAmount(o.TotalAmount))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only pending, confirmed, cancelled or completed orders")

	showCmd := &cobra.Command{
		Use:   "show ORDER_ID",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.visit("/orders"); err != nil {
				return err
			}
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			order, err := a.orders.FetchDetail(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("%s: %w", a.orders.Error(), err)
			}
			return printOrder(cmd, order)
		},
	}

	var form api.OrderForm
	checkoutCmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the contents of the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.visit("/checkout"); err != nil {
				return err
			}
			order, err := a.orders.Create(cmd.Context(), form)
			if err != nil {
				return fmt.Errorf("%s: %w", a.orders.Error(), err)
			}
			_ = a.cart.Reset(cmd.Context())
			a.router.NavigateTo("/orders")
			return printOrder(cmd, order)
		},
	}
	checkoutCmd.Flags().StringVar(&form.CustomerName, "name", "", "customer name")
	checkoutCmd.Flags().StringVar(&form.CustomerEmail, "email", "", "customer email")
	checkoutCmd.Flags().StringVar(&form.CustomerPhone, "phone", "", "customer phone")
	checkoutCmd.Flags().StringVar(&form.PaymentMethod, "payment", "card", "payment method")
	checkoutCmd.Flags().StringVar(&form.DeliveryAddress, "address", "", "delivery address")

	cancelCmd := &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.visit("/orders"); err != nil {
				return err
			}
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			order, err := a.orders.Cancel(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("%s: %w", a.orders.Error(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %d is %s\n", order.ID, order.Status)
			return nil
		},
	}

	cmd.AddCommand(showCmd, checkoutCmd, cancelCmd)
	return cmd
}

func printOrder(cmd *cobra.Command, o *api.Order) error {
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintf(w, "Order:\t%d\n", o.ID)
	fmt.Fprintf(w, "Status:\t%s\n", o.Status)
	fmt.Fprintf(w, "Customer:\t%s <%s>\n", o.CustomerName, o.CustomerEmail)
	fmt.Fprintf(w, "Total:\t%s\n", formatAmount(o.TotalAmount))
	for _, item := range o.Items {
		fmt.Fprintf(w, "  %d x %s\t%s\t%s\n", item.Quantity, item.PerformanceName, item.TheaterName, formatAmount(item.Subtotal))
	}
	return w.Flush()
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}
