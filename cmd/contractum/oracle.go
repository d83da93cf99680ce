package main

import (
	"encoding/json"
	"fmt"

	"github.com/govm-net/contractum/oracle/wasm"
	"github.com/spf13/cobra"
)

func newOracleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Inspect proof oracle modules",
	}

	var asJSON bool
	inspect := &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "List the exports and imports of a wasm proof oracle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := wasm.InspectFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, "exports:")
				for _, fn := range report.Exports {
					fmt.Fprintf(out, "  %s\n", fn)
				}
				fmt.Fprintln(out, "imports:")
				for _, fn := range report.Imports {
					fmt.Fprintf(out, "  %s\n", fn)
				}
			}
			if !report.Usable() {
				return fmt.Errorf("%w: %v", wasm.ErrMissingExport, report.Missing)
			}
			return nil
		},
	}
	inspect.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	cmd.AddCommand(inspect)
	return cmd
}
