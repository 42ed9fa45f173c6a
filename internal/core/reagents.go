package core

import (
	"context"

	"labstock/pkg/domain"
)

// CreateReagent persists a new reagent in an existing storage. Attachment
// keys are ignored; use AttachImage and AttachSDS.
func (s *Service) CreateReagent(ctx context.Context, reagent domain.Reagent) (domain.Reagent, domain.Result, error) {
	reagent.ImageKey = nil
	reagent.SDSKey = nil
	var created domain.Reagent
	res, err := s.run(ctx, "create_reagent", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateReagent(reagent)
		return err
	})
	return created, res, err
}

// GetReagent looks up a reagent; ok is false when it does not exist.
func (s *Service) GetReagent(ctx context.Context, id string) (reagent domain.Reagent, ok bool, err error) {
	err = s.view(ctx, "get_reagent", func(v domain.TransactionView) error {
		reagent, ok, err = v.FindReagent(id)
		return err
	})
	return reagent, ok, err
}

// ListReagents returns all reagents ordered by name.
func (s *Service) ListReagents(ctx context.Context) ([]domain.Reagent, error) {
	var out []domain.Reagent
	err := s.view(ctx, "list_reagents", func(v domain.TransactionView) error {
		var err error
		out, err = v.ListReagents()
		return err
	})
	return out, err
}

// UpdateReagentFields applies a partial update by field name. Unrecognized
// names are dropped. A stock value goes through the same check as
// SetReagentStock.
func (s *Service) UpdateReagentFields(ctx context.Context, id string, fields map[string]any) (domain.Reagent, domain.Result, error) {
	return s.updateReagentFields(ctx, "update_reagent", id, fields)
}

// SetReagentStock overwrites the stock on hand outside the usage ledger, e.g.
// after a physical count. Negative values are rejected.
func (s *Service) SetReagentStock(ctx context.Context, id string, stock int) (domain.Reagent, domain.Result, error) {
	return s.updateReagentFields(ctx, "set_reagent_stock", id, map[string]any{domain.FieldStock: stock})
}

func (s *Service) updateReagentFields(ctx context.Context, op, id string, fields map[string]any) (domain.Reagent, domain.Result, error) {
	fields = domain.FilterReagentFields(fields)
	var updated domain.Reagent
	res, err := s.run(ctx, op, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateReagent(id, func(r *domain.Reagent) error {
			return domain.ApplyReagentFields(r, fields)
		})
		return err
	})
	if err == nil {
		if stock, ok := fields[domain.FieldStock]; ok {
			s.logger.Info("stock set manually", "reagent", id, "stock", stock)
		}
	}
	return updated, res, err
}

// DeleteReagent removes a reagent that no usage record references, then
// drops its attachments.
func (s *Service) DeleteReagent(ctx context.Context, id string) (domain.Result, error) {
	var removed domain.Reagent
	res, err := s.run(ctx, "delete_reagent", func(tx domain.Transaction) error {
		r, ok, err := tx.FindReagent(id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
		}
		removed = r
		return tx.DeleteReagent(id)
	})
	if err != nil {
		return res, err
	}
	for _, key := range []*string{removed.ImageKey, removed.SDSKey} {
		if key == nil || *key == "" {
			continue
		}
		if _, derr := s.blobs.Delete(ctx, *key); derr != nil {
			s.logger.Warn("attachment cleanup failed", "reagent", id, "key", *key, "error", derr)
		}
	}
	return res, nil
}
