package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/hashstate/internal/errors"
)

// Values of the --error-format flag.
const (
	errorFormatText    = "text"
	errorFormatCompact = "compact"
	errorFormatJSON    = "json"
)

func errorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors [code]",
		Short: "List error codes or explain one",
		Long: `List every error code hashstate can report, or explain one of them.

Examples:
  hashstate errors
  hashstate errors H302`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				listErrors(out)
				return nil
			}

			code := strings.ToUpper(args[0])
			if _, ok := errors.GetTemplate(code); !ok {
				return errors.Newf(errors.CategoryCLI, "unknown error code %s", args[0]).
					WithSuggestion("Run 'hashstate errors' to list the codes")
			}
			fmt.Fprint(out, errors.New(code).Format())
			return nil
		},
	}
}

func listErrors(w io.Writer) {
	codes := errors.GetAllCodes()
	slices.Sort(codes)
	for _, code := range codes {
		t, _ := errors.GetTemplate(code)
		fmt.Fprintf(w, "%s  %-9s  %s\n", code, t.Category, t.Message)
	}
}

// applyColor sets error coloring from the --color flag. In auto mode the
// NO_COLOR environment variable turns colors off.
func applyColor(mode string) error {
	switch mode {
	case "always":
		errors.EnableColors()
	case "never":
		errors.DisableColors()
	case "auto", "":
		if os.Getenv("NO_COLOR") != "" {
			errors.DisableColors()
		}
	default:
		return errors.Newf(errors.CategoryCLI, "unknown color mode %q", mode).
			WithSuggestion("Use auto, always or never")
	}
	return nil
}

func checkErrorFormat(format string) error {
	switch format {
	case errorFormatText, errorFormatCompact, errorFormatJSON:
		return nil
	}
	return errors.Newf(errors.CategoryCLI, "unknown error format %q", format).
		WithSuggestion("Use text, compact or json")
}

// printError writes err to w in the given format. Unknown formats fall back
// to text.
func printError(w io.Writer, err error, format string) {
	var he *errors.Error
	if !stderrors.As(err, &he) {
		he = errors.Newf(errors.CategoryCLI, "%s", err.Error())
	}

	switch format {
	case errorFormatJSON:
		fmt.Fprintln(w, he.FormatJSON())
	case errorFormatCompact:
		fmt.Fprintln(w, he.FormatCompact())
	default:
		errors.Fprint(w, err)
	}
}
