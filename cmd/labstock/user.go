package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"labstock/pkg/domain"
)

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}

	var first, last, password string
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Register an active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := a.password(password)
			u, res, err := a.svc.RegisterUser(cmd.Context(), domain.User{
				Username:  args[0],
				FirstName: first,
				LastName:  last,
			}, pw)
			if err != nil {
				return a.fail(err)
			}
			a.printWarnings(res)
			fmt.Fprintln(a.out, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&first, "first", "", "first name")
	add.Flags().StringVar(&last, "last", "", "last name")
	add.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")

	login := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Check a username and password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.svc.Authenticate(cmd.Context(), args[0], a.password(password))
			if err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "Welcome, %s.\n", displayName(u))
			return nil
		},
	}
	login.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.svc.ListUsers(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			tw := a.table("USERNAME", "NAME", "ACTIVE")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, u.FullName(), yesNo(u.Active))
			}
			return tw.Flush()
		},
	}

	rm := &cobra.Command{
		Use:   "rm USERNAME",
		Short: "Delete a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.svc.DeleteUser(cmd.Context(), args[0]); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}

	cmd.AddCommand(add, login, a.userActiveCmd("activate", true), a.userActiveCmd("deactivate", false), list, rm)
	return cmd
}

func (a *app) userActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " USERNAME",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, _, err := a.svc.SetUserActive(cmd.Context(), args[0], active)
			if err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "%s active: %s\n", u.Username, yesNo(u.Active))
			return nil
		},
	}
}

// password returns flag when set, otherwise one line read from the input.
func (a *app) password(flag string) string {
	if flag != "" {
		return flag
	}
	fmt.Fprint(a.errOut, "Password: ")
	line, _ := a.in.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

func displayName(u domain.User) string {
	if n := u.FullName(); n != "" {
		return n
	}
	return u.Username
}
