package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"labstock/internal/core"
	"labstock/pkg/domain"
)

func (a *app) reagentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "reagent", Short: "Manage reagents and their attachments"}
	cmd.AddCommand(
		a.reagentAddCmd(),
		a.reagentListCmd(),
		a.reagentShowCmd(),
		a.reagentSetCmd(),
		a.reagentStockCmd(),
		a.reagentRmCmd(),
		a.reagentAttachCmd(),
		a.reagentDetachCmd(),
		a.reagentOpenCmd(core.AttachmentImage),
		a.reagentOpenCmd(core.AttachmentSDS),
		a.reagentURLCmd(),
	)
	return cmd
}

func (a *app) reagentAddCmd() *cobra.Command {
	var storageID, description, form, hazard, received, expires string
	var stock int
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a reagent in a storage location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r domain.Reagent
			if err := domain.ApplyReagentFields(&r, map[string]any{
				domain.FieldName:        args[0],
				domain.FieldStorageID:   storageID,
				domain.FieldDescription: description,
				domain.FieldForm:        form,
				domain.FieldHazardClass: hazard,
				domain.FieldReceivedAt:  received,
				domain.FieldExpiresAt:   expires,
				domain.FieldStock:       stock,
			}); err != nil {
				return a.fail(err)
			}
			created, res, err := a.svc.CreateReagent(cmd.Context(), r)
			if err != nil {
				return a.fail(err)
			}
			a.printWarnings(res)
			fmt.Fprintln(a.out, created.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&storageID, "storage", "s", "", "storage location ID")
	f.StringVarP(&description, "description", "d", "", "description")
	f.StringVar(&form, "form", "", "physical form (solid, liquid, gas, other)")
	f.StringVar(&hazard, "hazard", "", "hazard class")
	f.StringVar(&received, "received", "", "date received (YYYY-MM-DD)")
	f.StringVar(&expires, "expires", "", "expiry date (YYYY-MM-DD)")
	f.IntVar(&stock, "stock", 0, "quantity on hand")
	_ = cmd.MarkFlagRequired("storage")
	return cmd
}

func (a *app) reagentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all reagents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reagents, err := a.svc.ListReagents(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			return a.printReagents(reagents)
		},
	}
}

func (a *app) reagentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show every attribute of a reagent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.requireReagent(cmd, args[0])
			if err != nil {
				return err
			}
			tw := a.table("FIELD", "VALUE")
			row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }
			row("id", r.ID)
			row(domain.FieldName, r.Name)
			row(domain.FieldDescription, r.Description)
			row(domain.FieldForm, string(r.Form))
			row(domain.FieldHazardClass, r.HazardClass)
			row(domain.FieldReceivedAt, formatDate(r.ReceivedAt))
			row(domain.FieldExpiresAt, formatDate(r.ExpiresAt))
			row(domain.FieldStock, fmt.Sprint(r.Stock))
			row(domain.FieldStorageID, r.StorageID)
			row("image", yesNo(r.HasImage()))
			row("sds", yesNo(r.HasSDS()))
			return tw.Flush()
		},
	}
}

func (a *app) reagentSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set ID FIELD=VALUE...",
		Short: "Update reagent fields; unknown field names are ignored",
		Long:  "Update reagent fields. Recognized fields: " + strings.Join(domain.ReagentFields, ", ") + ".",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := make(map[string]any, len(args)-1)
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return a.fail(domain.Invalid("fields", "expected FIELD=VALUE, got %q", kv))
				}
				fields[strings.TrimSpace(k)] = v
			}
			r, res, err := a.svc.UpdateReagentFields(cmd.Context(), args[0], fields)
			if err != nil {
				return a.fail(err)
			}
			a.printWarnings(res)
			fmt.Fprintf(a.out, "%s\t%s\tstock %d\n", r.ID, r.Name, r.Stock)
			return nil
		},
	}
}

func (a *app) reagentStockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stock ID AMOUNT",
		Short: "Set the quantity on hand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("stock", args[1])
			if err != nil {
				return a.fail(err)
			}
			r, res, err := a.svc.SetReagentStock(cmd.Context(), args[0], amount)
			if err != nil {
				return a.fail(err)
			}
			a.printWarnings(res)
			fmt.Fprintf(a.out, "%s stock %d\n", r.Name, r.Stock)
			return nil
		},
	}
}

func (a *app) reagentRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a reagent without usages, with its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.svc.DeleteReagent(cmd.Context(), args[0]); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}
}

func (a *app) reagentAttachCmd() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "attach ID image|sds FILE",
		Short: "Store or replace a reagent image or safety data sheet",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseAttachmentKind(args[1])
			if err != nil {
				return a.fail(err)
			}
			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()
			ct := contentType
			if ct == "" {
				ct = sniffContentType(f)
			}
			attach := a.svc.AttachImage
			if kind == core.AttachmentSDS {
				attach = a.svc.AttachSDS
			}
			if _, err := attach(cmd.Context(), args[0], f, ct); err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "%s stored as %s\n", kind, core.AttachmentKey(args[0], kind))
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type (detected from the file when empty)")
	return cmd
}

func (a *app) reagentDetachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach ID image|sds",
		Short: "Remove a reagent attachment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseAttachmentKind(args[1])
			if err != nil {
				return a.fail(err)
			}
			if _, err := a.svc.RemoveAttachment(cmd.Context(), args[0], kind); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}
}

// reagentOpenCmd builds the "image" and "sds" commands that copy an
// attachment to a file or standard output.
func (a *app) reagentOpenCmd(kind core.AttachmentKind) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   string(kind) + " ID",
		Short: "Write the reagent's " + string(kind) + " to a file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			open := a.svc.ReagentImage
			if kind == core.AttachmentSDS {
				open = a.svc.ReagentSDS
			}
			att, ok, err := open(cmd.Context(), args[0])
			if err != nil {
				return a.fail(err)
			}
			if !ok {
				fmt.Fprintf(a.out, "no %s attached\n", kind)
				return nil
			}
			defer att.Body.Close()
			var w io.Writer = a.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = io.Copy(w, att.Body)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file")
	return cmd
}

func (a *app) reagentURLCmd() *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "url ID image|sds",
		Short: "Print a time-limited download URL for an attachment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseAttachmentKind(args[1])
			if err != nil {
				return a.fail(err)
			}
			url, err := a.svc.AttachmentURL(cmd.Context(), args[0], kind, expiry)
			if err != nil {
				return a.fail(err)
			}
			fmt.Fprintln(a.out, url)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expiry, "expiry", 15*time.Minute, "URL lifetime")
	return cmd
}

func (a *app) requireReagent(cmd *cobra.Command, id string) (domain.Reagent, error) {
	r, ok, err := a.svc.GetReagent(cmd.Context(), id)
	if err != nil {
		return r, a.fail(err)
	}
	if !ok {
		return r, a.fail(domain.NotFoundError{Entity: domain.EntityReagent, ID: id})
	}
	return r, nil
}

func sniffContentType(f *os.File) string {
	if ct := mime.TypeByExtension(filepath.Ext(f.Name())); ct != "" {
		return ct
	}
	head := make([]byte, 512)
	n, _ := f.Read(head)
	_, _ = f.Seek(0, io.SeekStart)
	return http.DetectContentType(head[:n])
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
