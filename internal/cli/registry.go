package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-workbench/registry"
)

func newRegistryCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "registry [path]",
		Short: "Show the tree of available models",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Default()
			var path []string
			if len(args) == 1 {
				path = splitPath(args[0])
			}

			w := cmd.OutOrStdout()
			if asJSON {
				e, err := reg.Describe(path...)
				if err != nil {
					return err
				}
				var v interface{} = e
				if len(path) == 0 {
					v = reg
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			return printTree(w, reg, path)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// printTree prints the subtree at path, one label per line, indented by depth.
func printTree(w io.Writer, reg *registry.Registry, path []string) error {
	e, err := reg.Describe(path...)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", max(len(path)-1, 0))
	if e.Kind == "leaf" {
		if len(path) == 0 {
			return nil
		}
		fmt.Fprintf(w, "%s%s (%s)\n", indent, path[len(path)-1], e.Description)
		return nil
	}
	if len(path) > 0 {
		fmt.Fprintf(w, "%s%s/\n", indent, path[len(path)-1])
	}
	for _, label := range e.Children {
		if err := printTree(w, reg, append(append([]string(nil), path...), label)); err != nil {
			return err
		}
	}
	return nil
}
