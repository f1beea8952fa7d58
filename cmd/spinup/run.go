package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spinup/spinup/internal/orchestrator"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		data    string
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run one query through the engine and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := orchestrator.Request{Query: strings.Join(args, " ")}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &req.Input); err != nil {
					return fmt.Errorf("--data must be a JSON object: %w", err)
				}
			}

			a, err := newApp(cmd.Context(), root.cfg, root.baseDir, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var observers []orchestrator.Observer
			if verbose {
				observers = append(observers, traceObserver(cmd.ErrOrStderr()))
			}
			res, err := a.engine.Run(cmd.Context(), req, observers...)
			if err != nil {
				return describeRunError(err)
			}
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "structured input passed to actions, as a JSON object")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each round to stderr")
	return cmd
}

func printResult(w io.Writer, res *orchestrator.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(w, res.Summary)
	if res.Results != nil {
		out, err := json.MarshalIndent(res.Results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
	}
	return nil
}

func traceObserver(w io.Writer) orchestrator.Observer {
	return orchestrator.ObserverFunc(func(_ context.Context, ev orchestrator.Event) {
		switch ev.Kind {
		case orchestrator.EventDecision:
			if ev.Decision == nil {
				return
			}
			if ev.Decision.IsDone {
				fmt.Fprintf(w, "[round %d] done\n", ev.Round)
			} else {
				fmt.Fprintf(w, "[round %d] actions: %s\n", ev.Round, strings.Join(ev.Decision.Actions, ", "))
			}
		case orchestrator.EventActionRetry:
			fmt.Fprintf(w, "[round %d] %s failed, retrying (attempt %d): %s\n", ev.Round, ev.ActionID, ev.Attempt, ev.Error)
		case orchestrator.EventActionCompleted:
			fmt.Fprintf(w, "[round %d] %s ok (%s)\n", ev.Round, ev.ActionID, ev.Elapsed)
		}
	})
}

// describeRunError adds the failure kind to the message.
func describeRunError(err error) error {
	var dispErr *orchestrator.DispatchError
	if errors.As(err, &dispErr) && dispErr.Reason == orchestrator.ReasonUnknownAction {
		return fmt.Errorf("%s: %w (see `spinup actions`)", orchestrator.ErrorKind(err), err)
	}
	return fmt.Errorf("%s: %w", orchestrator.ErrorKind(err), err)
}
