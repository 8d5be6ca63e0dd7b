package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
)

func NewStockCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect and adjust product stock",
	}
	cmd.AddCommand(&cobra.Command{
		Use:          "set <productID> <size> <qty>",
		Short:        "Set the stock of one size and recompute the product total",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := domain.ParseSize(args[1])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[2])
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			ledger, closeFn, err := opts.Stock(ctx, opts.DSN)
			if err != nil {
				return err
			}
			defer closeFn()

			p, err := ledger.SetStock(ctx, args[0], size, qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s size %s = %d (inventory %d, in stock %t)\n",
				p.ID, size, p.Sizes[size], p.Inventory, p.InStock)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:          "reserve <productID> <qty>",
		Short:        "Reserve units of a product's total stock, drawing from sizes in catalog order",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			ledger, closeFn, err := opts.Stock(ctx, opts.DSN)
			if err != nil {
				return err
			}
			defer closeFn()

			p, err := ledger.ReserveProduct(ctx, args[0], qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reserved %d (inventory %d, in stock %t)\n",
				p.ID, qty, p.Inventory, p.InStock)
			return nil
		},
	})
	return cmd
}
