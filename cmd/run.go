// File: cmd/run.go
package cmd

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/internal/action"
	"github.com/xkilldash9x/webtraversal/internal/classifier"
	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/observability"
	"github.com/xkilldash9x/webtraversal/internal/workflow"
)

// newWindow starts the browser behind every window. Replaced in tests.
var newWindow workflow.WindowFactory = workflow.LaunchChrome

const (
	policyRandom = "random"
	policyDummy  = "dummy"
)

type runOptions struct {
	steps  int
	policy string
	tabs   bool
	output string
	seed   uint64
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [urls...]",
		Short: "Traverse the given URLs until the step limit, the timeout or every tab is done",
		Long: `Opens every URL in its own window, or with --tabs in its own tab of a
single window, then loops: snapshot each tab, classify its elements, and let
the policy pick the next actions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runTraversal(cmd, cfg, opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.steps, "steps", "n", 0, "number of policy decisions before stopping, 0 for no limit")
	cmd.Flags().StringVarP(&opts.policy, "policy", "p", policyRandom, "policy choosing the actions: random or dummy")
	cmd.Flags().BoolVar(&opts.tabs, "tabs", false, "open the URLs as tabs of one window instead of separate windows")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "directory for saved snapshots (debug.save)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed of the random policy, 0 for a random seed")
	return cmd
}

func runTraversal(cmd *cobra.Command, cfg *config.Config, opts *runOptions, urls []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	if opts.steps < 0 {
		return fmt.Errorf("--steps must not be negative, got %d", opts.steps)
	}

	wopts := workflow.Options{
		URLs:      startURLs(urls, opts.tabs),
		Output:    opts.output,
		Config:    cfg,
		Logger:    logger,
		NewWindow: newWindow,
		Input:     cmd.InOrStdin(),
		Version:   Version,
		Goal:      workflow.Forever(),
	}
	if opts.steps > 0 {
		wopts.Goal = workflow.NSteps(opts.steps)
	}

	switch opts.policy {
	case policyRandom:
		var rng *rand.Rand
		if opts.seed != 0 {
			rng = rand.New(rand.NewPCG(opts.seed, opts.seed))
		}
		active := classifier.ActiveElementFilter()
		active.Action = action.Click{}
		wopts.Classifiers = append(wopts.Classifiers, active)
		wopts.Policy = workflow.RandomClick(rng)
	case policyDummy:
		wopts.Policy = workflow.Dummy()
	default:
		return fmt.Errorf("unknown policy %q, expected %s or %s", opts.policy, policyRandom, policyDummy)
	}

	wf, err := workflow.New(ctx, wopts)
	if err != nil {
		return err
	}
	logger.Info("Starting traversal.", zap.String("run_id", wf.ID()), zap.Strings("urls", urls))

	runErr := wf.Run(ctx)
	// Closing the browser closes every tab, so count them first.
	iterations, open, total := wf.LoopIndex()+1, len(wf.OpenTabs()), len(wf.Tabs())
	closeErr := wf.Close(ctx)
	if err := errors.Join(runErr, closeErr); err != nil {
		return err
	}

	cmd.Printf("Run %s finished after %d iterations, %d of %d tabs still open.\n",
		wf.ID(), iterations, open, total)
	return nil
}

// startURLs lays out urls as tabs tab1..tabN, each in its own window unless
// asTabs is set.
func startURLs(urls []string, asTabs bool) []workflow.WindowSpec {
	if len(urls) == 1 {
		return workflow.SingleURL(urls[0])
	}
	tabs := make([]workflow.TabSpec, len(urls))
	for i, u := range urls {
		tabs[i] = workflow.TabSpec{Name: "tab" + strconv.Itoa(i+1), URL: u}
	}
	if asTabs {
		return workflow.TabURLs(tabs...)
	}
	windows := make([]workflow.WindowSpec, len(tabs))
	for i, t := range tabs {
		windows[i] = workflow.WindowSpec{Name: "window" + strconv.Itoa(i+1), Tabs: []workflow.TabSpec{t}}
	}
	return windows
}
