package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) materialCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "material", Short: "Manage supporting materials used as usage notes"}

	add := &cobra.Command{
		Use:   "add NAME...",
		Short: "Register a supporting material",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := a.svc.AddSupportingMaterial(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "%s\t%s\n", m.ID, m.Name)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List supporting materials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			materials, err := a.svc.ListSupportingMaterials(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			tw := a.table("ID", "NAME")
			for _, m := range materials {
				fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.Name)
			}
			return tw.Flush()
		},
	}

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a supporting material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.svc.DeleteSupportingMaterial(cmd.Context(), args[0]); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list, rm)
	return cmd
}
