package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/continuum-app/continuum-cli/tui"
)

var version = "dev"

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
}

// cli carries the state shared by every command of one invocation.
type cli struct {
	flags flagValues
	// interactive reports whether progress should be rendered with the TUI.
	interactive func() bool
}

func main() {
	c := &cli{interactive: isTTY}
	if err := c.rootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "continuum",
		Short:         "Command-line client for Continuum",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.serverURL, "server-url", "",
		"API base URL (default: "+defaultServerURL+" or SERVER_URL env)")
	pf.StringVar(&c.flags.tokenStore, "token-store", "",
		"Where tokens are kept: file, memory or redis (default: file or TOKEN_STORE env)")
	pf.StringVar(&c.flags.tokenFile, "token-file", "",
		"Token storage file (default: "+defaultTokenFile+" or TOKEN_FILE env)")
	pf.StringVar(&c.flags.redisURL, "redis-url", "",
		"Redis URL for --token-store=redis (default: "+defaultRedisURL+" or REDIS_URL env)")
	pf.StringVar(&c.flags.timeout, "timeout", "",
		"Per-request timeout (default: 10s or REQUEST_TIMEOUT env)")
	pf.BoolVar(&c.flags.debug, "debug", false, "Enable debug logging (or CONTINUUM_DEBUG env)")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.registerCmd(),
		c.whoamiCmd(),
		c.statusCmd(),
		c.statsCmd(),
		c.rankingsCmd(),
		c.sessionsCmd(),
		c.relapsesCmd(),
		c.languageCmd(),
		c.streakCmd(),
	)
	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}

// newLogger writes human-readable logs to w. Without debug only warnings and
// errors are shown.
func newLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// isTTY reports whether stderr is an interactive terminal.
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// reported marks err as already shown to the user.
func reported(err error) error {
	if errors.Is(err, errReported) {
		return err
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

// run resolves the configuration, builds the app and runs fn with progress
// reported through a TUI program or plain text.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	errOut := cmd.ErrOrStderr()

	cfg, err := loadConfig(c.flags, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return reported(err)
	}
	log := newLogger(errOut, cfg.Debug)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	body := func(d tui.Displayer) error {
		d.Banner(cfg.ServerURL)

		a, err := newApp(cfg, d, log, cmd.OutOrStdout())
		if err != nil {
			d.Fatal(err)
			return reported(err)
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close token store")
			}
		}()

		if err := fn(ctx, a); err != nil {
			if !errors.Is(err, errReported) {
				d.Fatal(err)
			}
			return reported(err)
		}
		d.Done()
		return nil
	}

	if !c.interactive() {
		return body(tui.NewPlainDisplayer(errOut))
	}

	// Run TUI program on stderr so stdout pipes are not corrupted
	m := tui.NewModel()
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries. Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	runErr := body(tui.NewProgramDisplayer(p))
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()
	return runErr
}
