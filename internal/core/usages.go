package core

import (
	"context"
	"strings"

	"labstock/pkg/domain"
)

// UsageOutcome is the committed result of logging or editing a usage.
type UsageOutcome struct {
	Usage      domain.UsageRecord     `json:"usage"`
	Reagent    domain.Reagent         `json:"reagent"`
	Adjustment domain.StockAdjustment `json:"adjustment"`
}

// PreviewUsage computes the stock adjustment a usage write would make without
// saving anything. A usage with an empty ID is treated as new; otherwise the
// stored record's amount is the original amount.
func (s *Service) PreviewUsage(ctx context.Context, usage domain.UsageRecord) (domain.StockAdjustment, error) {
	var adj domain.StockAdjustment
	err := s.view(ctx, "preview_usage", func(v domain.TransactionView) error {
		change := domain.UsageChange{IsNew: usage.ID == "", NewAmount: usage.Amount}
		reagentID := usage.ReagentID
		if !change.IsNew {
			stored, ok, err := v.FindUsage(usage.ID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityUsage, ID: usage.ID}
			}
			change.OriginalAmount = stored.Amount
			reagentID = stored.ReagentID
		}
		if usage.Amount < 0 {
			return domain.Invalid("amount", "must not be negative")
		}
		reagent, ok, err := v.FindReagent(reagentID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityReagent, ID: reagentID}
		}
		change.CurrentStock = reagent.Stock
		adj = domain.PlanUsage(change)
		return nil
	})
	return adj, err
}

// LogUsage records a new usage and decrements the reagent's stock in the same
// transaction. Over-consumption does not block: the stock is clamped at zero
// and the returned Result carries a stock_overdraw warning.
func (s *Service) LogUsage(ctx context.Context, usage domain.UsageRecord) (UsageOutcome, domain.Result, error) {
	usage.ID = ""
	if err := domain.ValidateUsage(usage); err != nil {
		return UsageOutcome{}, domain.Result{}, err
	}
	if usage.UsedAt.IsZero() {
		usage.UsedAt = s.clock.Now()
	}
	var out UsageOutcome
	res, err := s.run(ctx, "log_usage", func(tx domain.Transaction) error {
		reagent, err := requireReagent(tx, usage.ReagentID)
		if err != nil {
			return err
		}
		out.Adjustment = domain.PlanUsage(domain.UsageChange{
			CurrentStock: reagent.Stock,
			IsNew:        true,
			NewAmount:    usage.Amount,
		})
		if out.Usage, err = tx.CreateUsage(usage); err != nil {
			return err
		}
		if out.Reagent, err = applyAdjustment(tx, reagent.ID, out.Adjustment); err != nil {
			return err
		}
		return registerNote(tx, usage.Note)
	})
	if err != nil {
		return UsageOutcome{}, res, err
	}
	return out, s.withAdjustment(res, out), nil
}

// EditUsage corrects a usage record and applies only the difference to the
// reagent's stock: a lower amount returns units, a higher one consumes more.
// The reagent of a usage cannot be changed.
func (s *Service) EditUsage(ctx context.Context, id string, mutator func(*domain.UsageRecord) error) (UsageOutcome, domain.Result, error) {
	var out UsageOutcome
	res, err := s.run(ctx, "edit_usage", func(tx domain.Transaction) error {
		original, ok, err := tx.FindUsage(id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityUsage, ID: id}
		}
		next := original
		if err := mutator(&next); err != nil {
			return err
		}
		if next.ReagentID != original.ReagentID {
			return domain.Invalid("reagent_id", "cannot be changed on an existing usage")
		}
		if err := domain.ValidateUsage(next); err != nil {
			return err
		}
		reagent, err := requireReagent(tx, original.ReagentID)
		if err != nil {
			return err
		}
		out.Adjustment = domain.PlanUsage(domain.UsageChange{
			CurrentStock:   reagent.Stock,
			NewAmount:      next.Amount,
			OriginalAmount: original.Amount,
		})
		if out.Usage, err = tx.UpdateUsage(id, func(u *domain.UsageRecord) error {
			*u = next
			return nil
		}); err != nil {
			return err
		}
		if out.Reagent, err = applyAdjustment(tx, reagent.ID, out.Adjustment); err != nil {
			return err
		}
		if next.Note != original.Note {
			return registerNote(tx, next.Note)
		}
		return nil
	})
	if err != nil {
		return UsageOutcome{}, res, err
	}
	return out, s.withAdjustment(res, out), nil
}

// GetUsage looks up a usage record; ok is false when it does not exist.
func (s *Service) GetUsage(ctx context.Context, id string) (usage domain.UsageRecord, ok bool, err error) {
	err = s.view(ctx, "get_usage", func(v domain.TransactionView) error {
		usage, ok, err = v.FindUsage(id)
		return err
	})
	return usage, ok, err
}

// ListUsagesByReagent returns the usages of one reagent, oldest first.
func (s *Service) ListUsagesByReagent(ctx context.Context, reagentID string) ([]domain.UsageRecord, error) {
	var out []domain.UsageRecord
	err := s.view(ctx, "list_usages_by_reagent", func(v domain.TransactionView) error {
		var err error
		out, err = v.ListUsagesByReagent(reagentID)
		return err
	})
	return out, err
}

// ListUsagesByUser returns the usages logged under an exact, case-sensitive
// user name, oldest first.
func (s *Service) ListUsagesByUser(ctx context.Context, userName string) ([]domain.UsageRecord, error) {
	var out []domain.UsageRecord
	err := s.view(ctx, "list_usages_by_user", func(v domain.TransactionView) error {
		var err error
		out, err = v.ListUsagesByUser(userName)
		return err
	})
	return out, err
}

// DeleteUsage removes a usage record. The reagent's stock is left as is.
func (s *Service) DeleteUsage(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, "delete_usage", func(tx domain.Transaction) error {
		return tx.DeleteUsage(id)
	})
}

func (s *Service) withAdjustment(res domain.Result, out UsageOutcome) domain.Result {
	if out.Adjustment.Warn() {
		s.logger.Warn("usage exceeds stock", "reagent", out.Reagent.ID, "usage", out.Usage.ID, "excess", out.Adjustment.Excess())
	}
	combined := out.Adjustment.Result(out.Reagent.ID)
	combined.Merge(res)
	return combined
}

func requireReagent(tx domain.Transaction, id string) (domain.Reagent, error) {
	if id == "" {
		return domain.Reagent{}, domain.Invalid("reagent_id", "is required")
	}
	reagent, ok, err := tx.FindReagent(id)
	if err != nil {
		return domain.Reagent{}, err
	}
	if !ok {
		return domain.Reagent{}, domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
	}
	return reagent, nil
}

func applyAdjustment(tx domain.Transaction, reagentID string, adj domain.StockAdjustment) (domain.Reagent, error) {
	return tx.UpdateReagent(reagentID, func(r *domain.Reagent) error {
		r.Stock = adj.NewStock
		return nil
	})
}

func registerNote(tx domain.Transaction, note string) error {
	if strings.TrimSpace(note) == "" {
		return nil
	}
	_, err := tx.EnsureSupportingMaterial(note)
	return err
}
