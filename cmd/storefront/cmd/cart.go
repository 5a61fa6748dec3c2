package cmd

import (
	"fmt"
	"strconv"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/spf13/cobra"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.visit("/cart"); err != nil {
				return err
			}
			if _, err := a.cart.FetchItems(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", a.cart.Error(), err)
			}
			return printCart(cmd, a)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add SCHEDULE_ID QUANTITY",
		Short: "Put tickets for a performance schedule in the cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.visit("/cart"); err != nil {
				return err
			}
			scheduleID, quantity, err := parseIDAndQuantity(args)
			if err != nil {
				return err
			}
			item, err := a.cart.Add(cmd.Context(), scheduleID, quantity)
			if err != nil {
				return fmt.Errorf("%s: %w", a.cart.Error(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d x %s\n", item.Quantity, item.PerformanceSchedule.PerformanceName)
			return printCart(cmd, a)
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update ITEM_ID QUANTITY",
		Short: "Change the number of tickets of a cart item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.visit("/cart"); err != nil {
				return err
			}
			itemID, quantity, err := parseIDAndQuantity(args)
			if err != nil {
				return err
			}
			if err := a.cart.UpdateQuantity(cmd.Context(), itemID, quantity); err != nil {
				return fmt.Errorf("%s: %w", a.cart.Error(), err)
			}
			return printCart(cmd, a)
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove ITEM_ID",
		Short: "Remove an item from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.visit("/cart"); err != nil {
				return err
			}
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			if err := a.cart.Remove(cmd.Context(), itemID); err != nil {
				return fmt.Errorf("%s: %w", a.cart.Error(), err)
			}
			return printCart(cmd, a)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.visit("/cart"); err != nil {
				return err
			}
			if err := a.cart.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", a.cart.Error(), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cart cleared")
			return nil
		},
	}

	cmd.AddCommand(addCmd, updateCmd, removeCmd, clearCmd)
	return cmd
}

func printCart(cmd *cobra.Command, a *app) error {
	items := a.cart.Items()
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Your cart is empty")
		return nil
	}
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tPERFORMANCE\tTHEATER\tWHEN\tQTY\tPRICE")
	for _, item := range items {
		s := item.PerformanceSchedule
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			item.ID, s.PerformanceName, s.TheaterName, s.DateTime.Format("2006-01-02 15:04"),
			item.Quantity, formatAmount(s.Price*api.Amount(item.Quantity)))
	}
	fmt.Fprintf(w, "\t\t\tTotal\t%d\t%s\n", a.cart.Count(), formatAmount(a.cart.Total()))
	return w.Flush()
}

func parseIDAndQuantity(args []string) (int64, int, error) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid id %q", args[0])
	}
	quantity, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid quantity %q", args[1])
	}
	return id, quantity, nil
}

func formatAmount(a api.Amount) string {
	return strconv.FormatFloat(float64(a), 'f', 2, 64)
}
