package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"labstock/pkg/domain"
)

func (a *app) storageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "storage", Short: "Manage storage locations"}

	var description string
	var capacity int
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a storage location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, res, err := a.svc.CreateStorage(cmd.Context(), domain.Storage{
				Name:        args[0],
				Description: description,
				Capacity:    capacity,
			})
			if err != nil {
				return a.fail(err)
			}
			a.printWarnings(res)
			fmt.Fprintln(a.out, s.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&description, "description", "d", "", "description")
	add.Flags().IntVar(&capacity, "capacity", 0, "number of reagents the location holds (0 = unbounded)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List storage locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storages, err := a.svc.ListStorages(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			tw := a.table("ID", "NAME", "CAPACITY", "DESCRIPTION")
			for _, s := range storages {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Name, s.Capacity, s.Description)
			}
			return tw.Flush()
		},
	}

	browse := &cobra.Command{
		Use:   "browse ID",
		Short: "Show a storage location and its reagents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rack, ok, err := a.svc.BrowseStorage(cmd.Context(), args[0])
			if err != nil {
				return a.fail(err)
			}
			if !ok {
				return a.fail(domain.NotFoundError{Entity: domain.EntityStorage, ID: args[0]})
			}
			fmt.Fprintf(a.out, "%s (%d reagents)\n", rack.Storage.Name, len(rack.Reagents))
			return a.printReagents(rack.Reagents)
		},
	}

	var newName string
	edit := &cobra.Command{
		Use:   "edit ID",
		Short: "Rename or describe a storage location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			s, res, err := a.svc.UpdateStorage(cmd.Context(), args[0], func(s *domain.Storage) error {
				if flags.Changed("name") {
					s.Name = newName
				}
				if flags.Changed("description") {
					s.Description = description
				}
				if flags.Changed("capacity") {
					s.Capacity = capacity
				}
				return nil
			})
			if err != nil {
				return a.fail(err)
			}
			a.printWarnings(res)
			fmt.Fprintf(a.out, "%s\t%s\t%d\n", s.ID, s.Name, s.Capacity)
			return nil
		},
	}
	edit.Flags().StringVar(&newName, "name", "", "new name")
	edit.Flags().StringVarP(&description, "description", "d", "", "description")
	edit.Flags().IntVar(&capacity, "capacity", 0, "capacity (0 = unbounded)")

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete an empty storage location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.svc.DeleteStorage(cmd.Context(), args[0]); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list, browse, edit, rm)
	return cmd
}

func (a *app) printReagents(reagents []domain.Reagent) error {
	tw := a.table("ID", "NAME", "FORM", "STOCK", "EXPIRES")
	for _, r := range reagents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.Form, r.Stock, formatDate(r.ExpiresAt))
	}
	return tw.Flush()
}
