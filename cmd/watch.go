package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/conneroisu/rminify/internal/engine"
	"github.com/conneroisu/rminify/internal/minify"
	"github.com/conneroisu/rminify/internal/notify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Keep every declared pair in sync",
	Long: `Watch the manifest and every editable file it declares. Each save of an
editable file is minified into its output; changes to the manifest add and
remove pairs without a restart. Runs until interrupted.

Examples:
  rminify watch                           # Watch ./rminify.json
  rminify watch --root ./src/Web          # Watch another project
  rminify watch --listen localhost:7071   # Stream failures to websocket clients`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchListen string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchListen, "listen", "", "address of the websocket notification hub (overrides notify.listen)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifiers := notify.Multi{notify.NewLogNotifier(p.logger)}

	listen := p.cfg.Notify.Listen
	if watchListen != "" {
		listen = watchListen
	}

	var hub *notify.Hub
	hubDone := make(chan error, 1)
	if listen != "" {
		hub = notify.NewHub(
			notify.WithAllowedOrigins(p.cfg.Notify.AllowedOrigins...),
			notify.WithHubLogger(p.logger),
		)
		notifiers = append(notifiers, hub)
		go func() {
			hubDone <- hub.ListenAndServe(ctx, listen)
		}()
	}

	eng := engine.New(p.store, minify.NewProcessor(p.cfg.ProcessorOptions()),
		engine.WithLogger(p.logger),
		engine.WithNotifier(notifiers),
		engine.WithEditSuffix(p.cfg.Edit.Suffix),
	)

	if err := eng.Start(ctx); err != nil {
		_ = eng.Close()
		return fmt.Errorf("failed to start sync engine: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "👀 Watching %d pair(s) from %s (Press Ctrl+C to stop)\n",
		len(eng.ActivePairs()), p.store.Path())

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-hubDone:
	}

	fmt.Fprintln(cmd.OutOrStdout(), "🛑 Stopping...")
	stop()

	if err := eng.Close(); err != nil {
		return err
	}
	if hub != nil {
		_ = hub.Close()
	}
	if serveErr != nil {
		return fmt.Errorf("notification hub failed: %w", serveErr)
	}
	return nil
}

// newEngine builds an engine for one-shot commands that never Start it.
func newEngine(p *project) *engine.Engine {
	return engine.New(p.store, minify.NewProcessor(p.cfg.ProcessorOptions()),
		engine.WithLogger(p.logger),
		engine.WithNotifier(notify.NewLogNotifier(p.logger)),
		engine.WithEditSuffix(p.cfg.Edit.Suffix),
	)
}

