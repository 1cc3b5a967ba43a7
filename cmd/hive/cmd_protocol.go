package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newProtocolCmd creates the "hive protocol" command group.
func newProtocolCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Manage protocol documents and the session's active protocol",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the protocols in the catalog",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, _, err := a.home()
				if err != nil {
					return err
				}
				names, err := protocolCatalog(reg).List()
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(names) == 0 {
					fmt.Fprintln(w, "No protocols installed (run hive init)")
					return nil
				}
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show NAME",
			Short: "Print a protocol document",
			Args:  usageArgs(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, _, err := a.home()
				if err != nil {
					return err
				}
				text, err := protocolCatalog(reg).Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			},
		},
		&cobra.Command{
			Use:   "add NAME FILE",
			Short: "Add or replace a protocol document from a markdown file",
			Args:  usageArgs(cobra.ExactArgs(2)),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, _, err := a.home()
				if err != nil {
					return err
				}
				data, err := os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("read protocol file: %w", err)
				}
				if err := protocolCatalog(reg).Add(args[0], string(data)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added protocol %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "set NAME",
			Short: "Make NAME the session's active protocol",
			Args:  usageArgs(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				if err := e.coord.SetProtocol(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Protocol: %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "get",
			Short: "Print the session's active protocol",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				name, ok, err := e.coord.Protocol()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "No protocol set")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			},
		},
	)
	return cmd
}
