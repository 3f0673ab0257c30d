package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vattn/internal/workload"
)

type simulateOptions struct {
	requests     int
	promptTokens int
	steps        int
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	so := simulateOptions{requests: 4, promptTokens: 512, steps: 64}
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run decode steps against a simulated device and print the final status",
		Example: "  vattnd simulate --requests 8 --steps 256",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(cfg, cmd.ErrOrStderr())
			n, err := startNode(cfg, log)
			if err != nil {
				return err
			}
			defer func() { n.finish(err) }()

			drv, err := workload.New(n.mgr, n.ranges, workload.Config{
				MaxBatch:      cfg.MaxBatch,
				BytesPerToken: cfg.BytesPerToken,
				Logger:        &log,
			})
			if err != nil {
				return err
			}
			if err := runDecode(cmd, drv, so); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(n.mgr.Status())
		},
	}
	cmd.Flags().IntVar(&so.requests, "requests", so.requests, "Concurrent requests to admit (at most max_batch)")
	cmd.Flags().IntVar(&so.promptTokens, "prompt-tokens", so.promptTokens, "Prompt length of every request")
	cmd.Flags().IntVar(&so.steps, "steps", so.steps, "Decode steps; each adds one token per request")
	return cmd
}

// runDecode admits so.requests requests and grows them one token per step.
// Exhausting the pool or a slot ends the run early without an error.
func runDecode(cmd *cobra.Command, drv *workload.Driver, so simulateOptions) error {
	seq := make(map[int]int, so.requests)
	for i := 0; i < so.requests; i++ {
		slot, err := drv.Admit()
		if err != nil {
			return fmt.Errorf("admit request %d: %w", i, err)
		}
		seq[slot] = so.promptTokens
	}
	for step := 0; step <= so.steps; step++ {
		err := drv.Step(cmd.Context(), seq)
		switch {
		case workload.IsOutOfPages(err), workload.IsContextTooLong(err):
			fmt.Fprintf(cmd.ErrOrStderr(), "stopping at step %d: %v\n", step, err)
			return nil
		case err != nil:
			return err
		}
		for slot := range seq {
			seq[slot]++
		}
	}
	return nil
}
