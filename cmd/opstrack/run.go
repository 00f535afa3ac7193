package main

import (
	"errors"
	"fmt"

	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "run [loop]",
		Short: "Run one loop, or every enabled loop, once against the database",
		Long: `Run executes loops once and exits. It is meant for an external cron
when the built-in scheduler is not used.`,
		Args: func(_ *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass a loop name or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("expected exactly one loop name, or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				runs, err := a.registry.RunAll(cmd.Context())
				for _, run := range runs {
					printRun(cmd, run)
				}
				return err
			}

			run, err := a.registry.RunByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRun(cmd, run)
			if run.Status == store.RunStatusFailed {
				return fmt.Errorf("loop %s failed: %s", run.LoopName, run.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run every enabled loop")
	return cmd
}

func printRun(cmd *cobra.Command, run *store.LoopRun) {
	line := fmt.Sprintf("%-22s %-10s findings=%d run=%s", run.LoopName, run.Status, run.FindingsCount, run.ID)
	if run.ErrorMessage != "" {
		line += " error=" + run.ErrorMessage
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
