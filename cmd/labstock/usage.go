package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"labstock/internal/export"
	"labstock/pkg/domain"
)

func (a *app) usageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "usage", Short: "Report and correct reagent consumption"}
	cmd.AddCommand(
		a.usagePreviewCmd(),
		a.usageLogCmd(),
		a.usageEditCmd(),
		a.usageListCmd(),
		a.usageRmCmd(),
		a.usageExportCmd(),
	)
	return cmd
}

func (a *app) usagePreviewCmd() *cobra.Command {
	var reagentID, usageID string
	cmd := &cobra.Command{
		Use:   "preview AMOUNT",
		Short: "Show the stock change a usage would make without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[0])
			if err != nil {
				return a.fail(err)
			}
			adj, err := a.svc.PreviewUsage(cmd.Context(), domain.UsageRecord{
				Base:      domain.Base{ID: usageID},
				ReagentID: reagentID,
				Amount:    amount,
			})
			if err != nil {
				return a.fail(err)
			}
			a.printAdjustment(adj)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reagentID, "reagent", "r", "", "reagent ID for a new usage")
	cmd.Flags().StringVar(&usageID, "usage", "", "usage ID when previewing an edit")
	cmd.MarkFlagsOneRequired("reagent", "usage")
	cmd.MarkFlagsMutuallyExclusive("reagent", "usage")
	return cmd
}

func (a *app) usageLogCmd() *cobra.Command {
	var user, note, date string
	cmd := &cobra.Command{
		Use:   "log REAGENT_ID AMOUNT",
		Short: "Record consumption of a reagent and decrement its stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return a.fail(err)
			}
			usedAt, err := parseDate(date)
			if err != nil {
				return a.fail(err)
			}
			usage := domain.UsageRecord{ReagentID: args[0], Amount: amount, UserName: user, Note: note, UsedAt: usedAt}
			if err := domain.ValidateUsage(usage); err != nil {
				return a.fail(err)
			}
			adj, err := a.svc.PreviewUsage(cmd.Context(), usage)
			if err != nil {
				return a.fail(err)
			}
			if !a.acceptOverdraw(adj) {
				fmt.Fprintln(a.out, "Usage not saved.")
				return nil
			}
			out, res, err := a.svc.LogUsage(cmd.Context(), usage)
			if err != nil {
				return a.fail(err)
			}
			a.printRuleWarnings(res)
			fmt.Fprintf(a.out, "%s\t%s stock %d\n", out.Usage.ID, out.Reagent.Name, out.Reagent.Stock)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&user, "user", "u", "", "name of the person who used the reagent")
	f.StringVarP(&note, "note", "n", "", "note or supporting material")
	f.StringVar(&date, "date", "", "date of use (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) usageEditCmd() *cobra.Command {
	var amountArg, user, note, date string
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Correct a usage; only the difference is applied to stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			current, ok, err := a.svc.GetUsage(ctx, args[0])
			if err != nil {
				return a.fail(err)
			}
			if !ok {
				return a.fail(domain.NotFoundError{Entity: domain.EntityUsage, ID: args[0]})
			}
			next := current
			if flags.Changed("amount") {
				if next.Amount, err = parseAmount("amount", amountArg); err != nil {
					return a.fail(err)
				}
			}
			if flags.Changed("user") {
				next.UserName = user
			}
			if flags.Changed("note") {
				next.Note = note
			}
			if flags.Changed("date") {
				if next.UsedAt, err = parseDate(date); err != nil {
					return a.fail(err)
				}
			}
			adj, err := a.svc.PreviewUsage(ctx, next)
			if err != nil {
				return a.fail(err)
			}
			if !a.acceptOverdraw(adj) {
				fmt.Fprintln(a.out, "Usage not saved.")
				return nil
			}
			out, res, err := a.svc.EditUsage(ctx, args[0], func(u *domain.UsageRecord) error {
				u.Amount = next.Amount
				u.UserName = next.UserName
				u.Note = next.Note
				u.UsedAt = next.UsedAt
				return nil
			})
			if err != nil {
				return a.fail(err)
			}
			a.printRuleWarnings(res)
			fmt.Fprintf(a.out, "%s\t%s stock %d\n", out.Usage.ID, out.Reagent.Name, out.Reagent.Stock)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&amountArg, "amount", "a", "", "corrected amount")
	f.StringVarP(&user, "user", "u", "", "corrected user name")
	f.StringVarP(&note, "note", "n", "", "corrected note")
	f.StringVar(&date, "date", "", "corrected date of use (YYYY-MM-DD)")
	return cmd
}

func (a *app) usageListCmd() *cobra.Command {
	var reagentID, user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List usages of a reagent or of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				usages []domain.UsageRecord
				err    error
			)
			if reagentID != "" {
				usages, err = a.svc.ListUsagesByReagent(cmd.Context(), reagentID)
			} else {
				usages, err = a.svc.ListUsagesByUser(cmd.Context(), user)
			}
			if err != nil {
				return a.fail(err)
			}
			tw := a.table("ID", "DATE", "AMOUNT", "USER", "REAGENT", "NOTE")
			for _, u := range usages {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					u.ID, u.UsedAt.Format(domain.DateLayout), u.Amount, u.UserName, u.ReagentID, u.Note)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&reagentID, "reagent", "r", "", "reagent ID")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user name")
	cmd.MarkFlagsOneRequired("reagent", "user")
	cmd.MarkFlagsMutuallyExclusive("reagent", "user")
	return cmd
}

func (a *app) usageRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a usage record; stock is not restored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.svc.DeleteUsage(cmd.Context(), args[0]); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}
}

func (a *app) usageExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export REAGENT_ID",
		Short: "Write the usages of a reagent to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.requireReagent(cmd, args[0])
			if err != nil {
				return err
			}
			usages, err := a.svc.ListUsagesByReagent(cmd.Context(), r.ID)
			if err != nil {
				return a.fail(err)
			}
			if output == "" {
				output = strings.ReplaceAll(r.Name, string(os.PathSeparator), "_") + "-usage.xlsx"
			}
			f, err := os.Create(output)
			if err != nil {
				return a.fail(fmt.Errorf("create export file %s: %w", output, err))
			}
			if err := export.WriteUsageWorkbook(f, r, usages); err != nil {
				_ = f.Close()
				return a.fail(fmt.Errorf("export usages of %s: %w", r.ID, err))
			}
			if err := f.Close(); err != nil {
				return a.fail(fmt.Errorf("close export file %s: %w", output, err))
			}
			fmt.Fprintf(a.out, "%d usages written to %s\n", len(usages), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "workbook path (default <reagent>-usage.xlsx)")
	return cmd
}

// acceptOverdraw prints the over-consumption warning of adj and asks whether
// to save anyway. Adjustments within stock are accepted without a prompt.
func (a *app) acceptOverdraw(adj domain.StockAdjustment) bool {
	if !adj.Warn() {
		return true
	}
	fmt.Fprintf(a.out, "warning: usage %s (stock %d)\n", adj.WarningMessage(), adj.CurrentStock)
	return a.confirm("Save anyway?")
}

// printRuleWarnings prints warnings other than the overdraw already
// confirmed by the user.
func (a *app) printRuleWarnings(res domain.Result) {
	var rest domain.Result
	for _, v := range res.Warnings() {
		if v.Rule != domain.RuleStockOverdraw {
			rest.Violations = append(rest.Violations, v)
		}
	}
	a.printWarnings(rest)
}

func (a *app) printAdjustment(adj domain.StockAdjustment) {
	fmt.Fprintf(a.out, "current stock %d, net change %d, new stock %d\n", adj.CurrentStock, adj.NetChange, adj.NewStock)
	if adj.Warn() {
		fmt.Fprintf(a.out, "warning: usage %s\n", adj.WarningMessage())
	}
}

func parseAmount(field, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, domain.Invalid(field, "expected a whole number, got %q", s)
	}
	return n, nil
}

// parseDate reads a YYYY-MM-DD date; empty yields the zero time so the
// service stamps the current time.
func parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, domain.Invalid("date", "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
