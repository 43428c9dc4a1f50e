package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
)

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage wallet keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Generate a wallet key for wallet.private_key",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wallet.Generate()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address:     %s\nprivate_key: %s\n", w.Address(), w.PrivateKeyHex())
			return nil
		},
	})
	return cmd
}
