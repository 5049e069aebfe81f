package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-go/hashstate/internal/config"
	"github.com/vango-go/hashstate/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╻ ╻┏━┓┏━┓╻ ╻┏━┓╺┳╸┏━┓╺┳╸┏━╸
  ┣━┫┣━┫┗━┓┣━┫┗━┓ ┃ ┣━┫ ┃ ┣╸
  ╹ ╹╹ ╹┗━┛╹ ╹┗━┛ ╹ ╹ ╹ ╹ ┗━╸
`

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		color, _ := root.PersistentFlags().GetString("color")
		format, _ := root.PersistentFlags().GetString("error-format")
		_ = applyColor(color)
		printError(os.Stderr, err, format)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		color       string
		errorFormat string
	)

	rootCmd := &cobra.Command{
		Use:   "hashstate",
		Short: "Keep application state in the URL fragment",
		Long: `hashstate binds application state to the URL fragment of browser tabs.

The serve command runs a bridge server: tabs load a small script, and
each configured key is kept in step with the tab's fragment and an
optional session mirror. The other commands inspect and build fragments
and OAuth redirect URLs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := checkErrorFormat(errorFormat); err != nil {
				return err
			}
			return applyColor(color)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: nearest hashstate.{json,toml,yaml})")
	rootCmd.PersistentFlags().StringVar(&color, "color", "auto", "Color error output: auto, always or never")
	rootCmd.PersistentFlags().StringVar(&errorFormat, "error-format", errorFormatText, "Error output format: text, compact or json")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		parseCmd(),
		encodeCmd(),
		decodeCmd(),
		authURLCmd(&configPath),
		initCmd(),
		errorsCmd(),
		versionCmd(),
	)

	return rootCmd
}

// loadConfig loads path, or the nearest config file when path is empty.
// With no file anywhere the defaults are used.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		var he *errors.Error
		if stderrors.As(err, &he) && he.Code == "H101" {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// exactArg requires a single positional argument described by what.
func exactArg(what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		switch {
		case len(args) == 0:
			return errors.New("H501").
				WithDetail(cmd.Name() + " needs a " + what).
				WithSuggestion("Run 'hashstate " + cmd.Name() + " --help' for examples")
		case len(args) > 1:
			return errors.New("H501").
				WithDetail(cmd.Name() + " takes a single " + what + "; quote it if it contains '&'")
		}
		return nil
	}
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	c := config.Config{Log: cfg}
	level, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// printBanner prints the ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
