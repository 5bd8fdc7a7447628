package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/boletinlabs/dirc/internal/config"
	"github.com/boletinlabs/dirc/internal/pipeline"
	"github.com/boletinlabs/dirc/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a drop directory and ingest new PDFs",
		Long: `Watch observes a directory and ingests every PDF dropped into it.
Files are debounced and only picked up once their size stops
changing, so slow copies are safe. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			opts := watcher.Options{
				Debounce:     config.Duration(app.cfg.Watch.Debounce, 0),
				PollInterval: config.Duration(app.cfg.Watch.PollInterval, 0),
				Patterns:     app.cfg.Watch.Patterns,
			}
			w, err := watcher.NewDropWatcher(opts, nil)
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			runner := watcher.NewRunner(w, app.pipeline, pipeline.Options{}, nil)
			if err := runner.Run(cmd.Context(), args[0]); err != nil &&
				!errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	return cmd
}
