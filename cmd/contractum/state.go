package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/govm-net/contractum/core"
	"github.com/spf13/cobra"
)

func newStateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect contract state",
	}

	show := &cobra.Command{
		Use:   "show <contract>",
		Short: "Print the state of a contract as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ContractIDFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid contract id: %w", err)
			}
			e, err := opts.newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			st, err := e.State(id)
			if err != nil {
				return err
			}
			data, err := st.Snapshot().Encode()
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, data, "", "  "); err != nil {
				return err
			}
			out.WriteByte('\n')
			if _, err := out.WriteTo(cmd.OutOrStdout()); err != nil {
				return err
			}
			if err := e.Lifecycle(id); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			return nil
		},
	}

	cmd.AddCommand(show)
	return cmd
}
