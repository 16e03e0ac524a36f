package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"agenttree/internal/dispatch"
	"agenttree/internal/export"
	"agenttree/internal/observability"
	"agenttree/internal/render"
	"agenttree/internal/source"
	"agenttree/internal/ui"
)

type appConfig struct {
	plain      bool
	forceColor bool
	noColor    bool
	tick       time.Duration
	diffLines  int
	exportPath string
	debugLog   string
	command    string
}

func main() {
	cfg := &appConfig{}

	rootCmd := &cobra.Command{
		Use:   "agenttree",
		Short: "Live execution-tree dashboard for agent tool streams",
	}
	rootCmd.PersistentFlags().BoolVar(&cfg.plain, "plain", false, "inline rendering without the full-screen UI")
	rootCmd.PersistentFlags().BoolVar(&cfg.forceColor, "color", false, "force colored output")
	rootCmd.PersistentFlags().BoolVar(&cfg.noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().DurationVar(&cfg.tick, "tick", dispatch.DefaultTickInterval, "animator tick interval")
	rootCmd.PersistentFlags().IntVar(&cfg.diffLines, "diff-lines", 5, "max preview lines per diff side")
	rootCmd.PersistentFlags().StringVar(&cfg.exportPath, "export", "", "write a markdown summary here on close")
	rootCmd.PersistentFlags().StringVar(&cfg.debugLog, "debug-log", "", "write debug logs to this file")

	rootCmd.AddCommand(newWatchCmd(cfg), newRunCmd(cfg), newConnectCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agenttree: %v\n", err)
		os.Exit(1)
	}
}

func newWatchCmd(cfg *appConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [file]",
		Short: "Render a stream-json event stream from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open stream: %w", err)
				}
				in = f
			}
			return runDashboard(cmd.Context(), cfg, source.NewLines(in))
		},
	}
}

func newRunCmd(cfg *appConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Spawn an agent CLI and render its stream-json output",
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := args
			if len(argv) == 0 && cfg.command != "" {
				argv = source.Split(cfg.command)
			}
			if len(argv) == 0 {
				return fmt.Errorf("no command given; pass it after -- or via --command")
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			src, err := source.NewCommand(ctx, argv)
			if err != nil {
				return err
			}
			return runDashboard(ctx, cfg, src)
		},
	}
	cmd.Flags().StringVar(&cfg.command, "command", "", "full command line to spawn (alternative to -- args)")
	return cmd
}

func newConnectCmd(cfg *appConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <url>",
		Short: "Render an event stream from a remote runtime over websocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			return runDashboard(ctx, cfg, source.NewWebSocket(ctx, args[0]))
		},
	}
}

func runDashboard(ctx context.Context, cfg *appConfig, src source.Source) error {
	defer src.Close()

	logger := observability.Nop()
	if cfg.debugLog != "" {
		fileLogger, closeLog, err := observability.FileLogger(cfg.debugLog)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer closeLog()
		logger = fileLogger
	}

	color := render.DetectColor(os.Stdout)
	if cfg.forceColor {
		color = true
	}
	if cfg.noColor {
		color = false
	}
	opts := render.Options{
		Width:        render.DetectWidth(os.Stdout),
		MaxDiffLines: cfg.diffLines,
		Theme:        render.DefaultTheme(color),
	}

	interactive := !cfg.plain && isatty.IsTerminal(os.Stdout.Fd())
	logger.Info("dashboard starting", "interactive", interactive, "width", opts.Width)

	var session *dispatch.Session
	if interactive {
		p := tea.NewProgram(ui.New(src.Events(), opts))
		final, err := p.Run()
		if err != nil {
			return fmt.Errorf("run dashboard: %w", err)
		}
		model, ok := final.(ui.Model)
		if !ok {
			return fmt.Errorf("unexpected final model %T", final)
		}
		session = model.Session()
	} else {
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		var err error
		session, err = dispatch.Run(sigCtx, src.Events(), render.NewWriter(os.Stdout), dispatch.LoopOptions{
			TickInterval: cfg.tick,
			Render:       opts,
		})
		if err != nil {
			return fmt.Errorf("run dashboard: %w", err)
		}
	}

	logger.Info("session closed",
		"phase", session.Phase().String(),
		"nodes", session.Tree().Len(),
		"diagnostics", len(session.Tree().Diagnostics()))

	if srcErr := src.Err(); srcErr != nil {
		fmt.Fprintf(os.Stderr, "agenttree: source: %v\n", srcErr)
	}

	if cfg.exportPath != "" {
		summary := export.Markdown(session.Tree())
		if err := os.WriteFile(cfg.exportPath, []byte(summary), 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		logger.Info("summary exported", "path", cfg.exportPath, "bytes", len(summary))
	}
	return nil
}
