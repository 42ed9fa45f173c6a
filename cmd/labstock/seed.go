package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"labstock/internal/seed"
)

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load storages, reagents, users and materials from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			sum, err := seed.Apply(cmd.Context(), a.svc, f)
			if err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "created %d storages, %d reagents, %d users, %d materials; %d already present\n",
				sum.Storages, sum.Reagents, sum.Users, sum.Materials, sum.Skipped)
			return nil
		},
	}
}
