package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/govm-net/contractum/iface"
	"github.com/spf13/cobra"
)

var standardInterfaces = map[string]func() *iface.Interface{
	"RGB20": iface.RGB20,
	"RGB21": iface.RGB21,
	"RGB25": iface.RGB25,
}

// loadInterface accepts a standard interface name or a YAML/JSON file.
func loadInterface(arg string) (*iface.Interface, error) {
	if build, ok := standardInterfaces[strings.ToUpper(arg)]; ok {
		if _, err := os.Stat(arg); os.IsNotExist(err) {
			return build(), nil
		}
	}
	return iface.LoadFile(arg)
}

func newIfaceCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iface",
		Short: "Inspect and register contract interfaces",
	}

	var asYAML bool
	show := &cobra.Command{
		Use:   "show <RGB20|RGB21|RGB25|file>",
		Short: "Print an interface declaration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ifc, err := loadInterface(args[0])
			if err != nil {
				return err
			}
			if asYAML {
				data, err := iface.Marshal(ifc)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return iface.Render(cmd.OutOrStdout(), ifc)
		},
	}
	show.Flags().BoolVar(&asYAML, "yaml", false, "print the structured model as YAML")

	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Check the consistency of an interface file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ifc, err := loadInterface(args[0])
			if err != nil {
				return err
			}
			id, err := ifc.ID()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s@%s is consistent\nid: %s\n", ifc.Name, ifc.Version, id)
			return nil
		},
	}

	register := &cobra.Command{
		Use:   "register <RGB20|RGB21|RGB25|file>",
		Short: "Register an interface in the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ifc, err := loadInterface(args[0])
			if err != nil {
				return err
			}
			e, err := opts.newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			id, err := e.RegisterInterface(ifc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Interface registered: %s@%s\nid: %s\n", ifc.Name, ifc.Version, id)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered interfaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			all, err := e.Repository().List()
			if err != nil {
				return err
			}
			for _, meta := range all {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", meta.Name, meta.Version, meta.ID)
			}
			return nil
		},
	}

	cmd.AddCommand(show, check, register, list)
	return cmd
}
