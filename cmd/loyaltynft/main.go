// loyaltynft mints and inspects loyalty NFTs stored in a key/value smart
// contract, and serves the same operations over HTTP.
//
// Usage:
//
//	loyaltynft serve                       Run the HTTP API
//	loyaltynft list [--mine]               List records, newest first
//	loyaltynft mint --amount --category    Mint a record for the wallet
//	loyaltynft stats                       Show tier and reward totals
//	loyaltynft decrypt <id>                Decrypt one of the wallet's records
//	loyaltynft reconcile                   Index records missing from nft_keys
//	loyaltynft scenario <file|dir>         Run end-to-end scenarios
//	loyaltynft wallet new                  Generate a wallet key
//	loyaltynft twin status|reset|seed|pause|resume
//	loyaltynft version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "loyaltynft",
		Short:         "Loyalty NFT minting and inspection",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `loyaltynft mints purchase-backed loyalty NFTs into a key/value contract
and reads them back.

The contract backend is chosen in the config file (contract.backend):
memory, badger, redis or http (a running twin-kvcontract). The memory
backend only lives as long as the process, so one-shot commands such as
list and mint are meant for the other backends.`,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "loyaltynft.yaml", "config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCmd(flags),
		newListCmd(flags),
		newMintCmd(flags),
		newStatsCmd(flags),
		newDecryptCmd(flags),
		newReconcileCmd(flags),
		newScenarioCmd(flags),
		newWalletCmd(),
		newTwinCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
