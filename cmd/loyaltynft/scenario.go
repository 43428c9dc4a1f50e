package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/loyaltynft/internal/scenario"
)

func newScenarioCmd(flags *rootFlags) *cobra.Command {
	var targets map[string]string
	cmd := &cobra.Command{
		Use:   "scenario <file|dir>",
		Short: "Run YAML scenarios against a running service and contract twin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			t := map[string]string{
				"loyaltynft": "http://localhost:" + strconv.Itoa(cfg.Server.Port),
				"kvcontract": cfg.Contract.HTTP.URL,
			}
			for name, u := range targets {
				t[name] = u
			}

			scenarios, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			runner := scenario.NewRunner(t)
			failed := 0
			out := cmd.OutOrStdout()
			for _, s := range scenarios {
				res, err := runner.Run(cmd.Context(), s)
				if err != nil {
					return fmt.Errorf("%s: %w", s.Name, err)
				}
				mark := "PASS"
				if !res.Passed {
					mark = "FAIL"
					failed++
				}
				fmt.Fprintf(out, "%s  %s (%s)\n", mark, res.ScenarioName, res.Duration.Round(time.Millisecond))
				for _, st := range res.Steps {
					if !st.Passed {
						fmt.Fprintf(out, "      %s: %s\n", st.Name, st.Error)
					}
				}
			}
			if failed > 0 {
				return errors.New(strconv.Itoa(failed) + " scenario(s) failed")
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&targets, "target", nil, "service base URL override, name=url")
	return cmd
}
