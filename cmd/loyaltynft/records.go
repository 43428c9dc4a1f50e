package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/loyaltynft/internal/records"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	var mine, asJSON bool
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ctl.Load(cmd.Context()); err != nil {
				return err
			}
			rs := a.ctl.Records()
			switch {
			case owner != "":
				rs = records.Mine(rs, owner)
			case mine:
				rs = a.ctl.MyRecords(a.wallet.Address())
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rs)
			}
			return writeTable(cmd.OutOrStdout(), rs)
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only records owned by the configured wallet")
	cmd.Flags().StringVar(&owner, "owner", "", "only records owned by this address")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMintCmd(flags *rootFlags) *cobra.Command {
	var req records.MintRequest
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a record for the configured wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.ctl.Mint(cmd.Context(), a.wallet, req)
			if st := a.ctl.State().Status; st != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), st.Message)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&req.PurchaseAmount, "amount", "", "purchase amount")
	cmd.Flags().StringVar(&req.ProductCategory, "category", "", "product category")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("category")
	return cmd
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show tier counts and reward totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ctl.Load(cmd.Context()); err != nil {
				return err
			}
			st := a.ctl.Stats()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Total\t%d\n", st.Total)
			fmt.Fprintf(w, "Active\t%d\n", st.Active)
			fmt.Fprintf(w, "Rewards\t%d\n", st.Rewards)
			fmt.Fprintf(w, "Bronze\t%d\t%.1f%%\n", st.Bronze, st.BronzePct)
			fmt.Fprintf(w, "Silver\t%d\t%.1f%%\n", st.Silver, st.SilverPct)
			fmt.Fprintf(w, "Gold\t%d\t%.1f%%\n", st.Gold, st.GoldPct)
			return w.Flush()
		},
	}
}

func newDecryptCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <id>",
		Short: "Decrypt one of the wallet's records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ctl.Load(cmd.Context()); err != nil {
				return err
			}
			if _, err := a.ctl.Select(args[0]); err != nil {
				return err
			}
			d, err := a.ctl.ToggleDecrypt(cmd.Context(), a.wallet)
			if err != nil {
				return err
			}
			if d == nil {
				return nil
			}
			if d.Purchase == nil {
				fmt.Fprintln(cmd.OutOrStdout(), d.Content)
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), d.Purchase)
		},
	}
}

func newReconcileCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Add stored records missing from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.store.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if len(added) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "index is complete")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d record(s): %s\n", len(added), strings.Join(added, ", "))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, rs []records.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLEVEL\tREWARDS\tSTATUS\tOWNER\tMINTED")
	for _, r := range rs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.LoyaltyLevel, r.Rewards, r.Status, r.Owner,
			time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
