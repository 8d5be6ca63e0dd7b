package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-realtime-checkout/internal/payment"
)

// NewSignCommand prints the signature the gateway would send for a payment,
// for exercising /checkout/verify against a sandbox.
func NewSignCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sign <gatewayOrderID> <paymentID>",
		Short:        "Print the expected payment signature",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Secret == "" {
				return errors.New("gateway secret is empty: set GATEWAY_KEY_SECRET or --secret")
			}
			fmt.Fprintln(cmd.OutOrStdout(), payment.Sign(opts.Secret, args[0], args[1]))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Secret, "secret", opts.Secret, "gateway key secret")
	return cmd
}
