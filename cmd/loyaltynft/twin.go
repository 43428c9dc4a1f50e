package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/loyaltynft/internal/client"
)

func newTwinCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Control a running twin-kvcontract",
	}
	cmd.PersistentFlags().StringVar(&url, "url", "http://localhost:8095", "twin base URL")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Check twin health",
			RunE: func(cmd *cobra.Command, args []string) error {
				ok, msg := client.New(url).Health(cmd.Context())
				if !ok {
					return fmt.Errorf("twin unhealthy: %s", msg)
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Clear all contract state",
			RunE: func(cmd *cobra.Command, args []string) error {
				out, err := client.New(url).Reset(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "seed <file>",
			Short: "Load contract state from a JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				out, err := client.New(url).Seed(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "pause",
			Short: "Make the contract report unavailable",
			RunE: func(cmd *cobra.Command, args []string) error {
				return client.New(url).SetAvailable(cmd.Context(), false)
			},
		},
		&cobra.Command{
			Use:   "resume",
			Short: "Make the contract available again",
			RunE: func(cmd *cobra.Command, args []string) error {
				return client.New(url).SetAvailable(cmd.Context(), true)
			},
		},
	)
	return cmd
}
