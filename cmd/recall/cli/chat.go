package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/metrics"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/ui"
	"github.com/felixgeelhaar/recall/internal/ui/tui"
	"github.com/spf13/cobra"
)

var (
	useTUI      bool
	plainOutput bool
	metricsAddr string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a conversation",
	Long: `Start a conversation. Operator commands:

` + runtime.OperatorHelp(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if metricsAddr != "" {
			cfg.Metrics.Addr = metricsAddr
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if useTUI {
			return runTUI(ctx, cfg)
		}
		return runConsole(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	RootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVarP(&useTUI, "tui", "t", false, "Start the full-screen interface")
	chatCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print replies without markdown rendering")
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

// lineHandler routes one operator line to the controller. An operator command
// that needs a value and has none inline takes the next line as its value.
type lineHandler struct {
	ctx     context.Context
	ctrl    *runtime.Controller
	pending *runtime.Operator
	ask     func(setting string)
}

// Pending names the setting waiting for a value, or "".
func (h *lineHandler) Pending() string {
	if h.pending == nil {
		return ""
	}
	return h.pending.Setting
}

// Submit handles line and reports whether the session is over.
func (h *lineHandler) Submit(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if h.pending != nil {
		op := *h.pending
		h.pending = nil
		return h.ctrl.Operate(h.ctx, op, line)
	}
	if line == "" {
		return false, nil
	}

	if op, value, ok := runtime.ParseOperator(line); ok {
		if op.NeedsValue() && value == "" {
			h.pending = &op
			if h.ask != nil {
				h.ask(op.Setting)
			}
			return false, nil
		}
		return h.ctrl.Operate(h.ctx, op, value)
	}

	_, err := h.ctrl.HandleInput(h.ctx, line)
	return false, err
}

func serveMetrics(ctx context.Context, app *App, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, metrics.Router(app.Metrics)); err != nil {
			app.Observer.Log().Error().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
		}
	}()
}

func runConsole(ctx context.Context, cfg *config.File, in io.Reader, out io.Writer) error {
	obs := newObserver(os.Stderr)
	defer obs.Close()

	console := ui.NewConsole(in, out, !plainOutput, verbose)
	app, err := NewApp(ctx, cfg, obs, console)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Controller.SetUI(console)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveMetrics(ctx, app, cfg.Metrics.Addr)

	return repl(ctx, app.Controller, console)
}

// repl reads lines until /q/ or end of input. Both end with a flush.
func repl(ctx context.Context, ctrl *runtime.Controller, console *ui.Console) error {
	h := &lineHandler{ctx: ctx, ctrl: ctrl}
	for {
		prompt := "USER: "
		if s := h.Pending(); s != "" {
			prompt = s + ": "
		}
		line, err := console.ReadLine(prompt)
		if errors.Is(err, io.EOF) {
			_, err := ctrl.Flush(ctx)
			return err
		}
		if err != nil {
			return err
		}

		quit, err := h.Submit(line)
		if quit {
			return err
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
	}
}

func runTUI(ctx context.Context, cfg *config.File) error {
	logFile, err := os.OpenFile(filepath.Join(cfg.Home, "recall.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	obs := observe.New(logFile, verbose)
	defer obs.Close()

	h := &lineHandler{ctx: ctx}
	model := tui.NewModel("recall", h.Submit)
	program := tea.NewProgram(model, tea.WithAltScreen())
	t := tui.NewTUI(program)
	h.ask = func(setting string) { t.Log("enter a value for " + setting) }

	app, err := NewApp(ctx, cfg, obs, t)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Controller.SetUI(t)
	h.ctrl = app.Controller

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveMetrics(ctx, app, cfg.Metrics.Addr)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	_, err = app.Controller.Flush(ctx)
	return err
}
