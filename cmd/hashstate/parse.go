package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/hashstate/pkg/fragment"
)

func parseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse <fragment|url>",
		Short: "Show the key/value pairs of a fragment",
		Long: `Show the key/value pairs of a fragment, in order.

The argument is a fragment ("#a=1&b=2", "a=1&b=2") or a whole URL, in
which case everything after the first '#' is parsed.

Examples:
  hashstate parse 'https://example.com/#page=2&q=go+lang'
  hashstate parse --json 'filters=%257B%2522a%2522%253A1%257D'`,
		Args: exactArg("fragment or URL"),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := fragment.Parse(fragmentOf(args[0]))
			out := cmd.OutOrStdout()

			if asJSON {
				type pair struct {
					Key   string `json:"key"`
					Value string `json:"value"`
				}
				pairs := make([]pair, 0, values.Len())
				for _, p := range values.Pairs() {
					pairs = append(pairs, pair{Key: p.Key, Value: p.Value})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(pairs)
			}

			for _, p := range values.Pairs() {
				fmt.Fprintf(out, "%s=%s\n", p.Key, p.Value)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print pairs as JSON")

	return cmd
}

// fragmentOf returns the fragment part of s when s is a URL, or s itself.
func fragmentOf(s string) string {
	if strings.Contains(s, "://") {
		_, frag, _ := strings.Cut(s, "#")
		return frag
	}
	return strings.TrimPrefix(s, "#")
}
