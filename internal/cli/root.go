// Package cli provides the ytchat command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/ytchat/internal/app"
	"github.com/raphaelgruber/ytchat/internal/config"
)

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	version string
	verbose bool

	svc     *app.Services
	cleanup func() error

	out    io.Writer
	styled bool
	theme  Theme
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	c := &cli{
		version: version,
		out:     os.Stdout,
		styled:  term.IsTerminal(int(os.Stdout.Fd())),
		theme:   defaultTheme,
	}

	root := &cobra.Command{
		Use:   "ytchat",
		Short: "Chat with YouTube videos",
		Long: `ytchat fetches YouTube transcripts, indexes them in a vector store and
answers questions about them with a tool-calling language model.

Configuration comes from .env, the YAML file named by YTCHAT_CONFIG and
environment variables.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.teardown()
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		c.ingestCmd(),
		c.askCmd(),
		c.chatCmd(),
		c.searchCmd(),
		c.versionCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// setup builds the services unless the command does not need them.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var logger *slog.Logger
	if c.verbose {
		logger, c.cleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	} else {
		logger, c.cleanup = config.SetupStdioLogger(cfg.LogFile, cfg.LogLevel)
	}

	c.svc, err = app.New(cmd.Context(), cfg, logger, app.Options{Version: c.version})
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	if !c.svc.Index.Durable() {
		c.warn("vector database unreachable, using in-memory index (nothing will persist)")
	}
	return nil
}

func (c *cli) teardown() error {
	if c.svc != nil {
		if err := c.svc.Close(context.Background()); err != nil {
			c.warn("close services: %v", err)
		}
	}
	if c.cleanup != nil {
		return c.cleanup()
	}
	return nil
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "ytchat %s\n", c.version)
		},
	}
}

// paint applies style only when stdout is a terminal.
func (c *cli) paint(style lipgloss.Style, text string) string {
	if !c.styled {
		return text
	}
	return style.Render(text)
}

func (c *cli) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		msg = c.theme.hintStyle().Render(msg)
	}
	fmt.Fprintln(os.Stderr, msg)
}
