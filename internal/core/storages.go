package core

import (
	"context"

	"labstock/pkg/domain"
)

// Rack is a storage location together with the reagents it holds.
type Rack struct {
	Storage  domain.Storage   `json:"storage"`
	Reagents []domain.Reagent `json:"reagents"`
}

// CreateStorage persists a new storage location.
func (s *Service) CreateStorage(ctx context.Context, storage domain.Storage) (domain.Storage, domain.Result, error) {
	var created domain.Storage
	res, err := s.run(ctx, "create_storage", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateStorage(storage)
		return err
	})
	return created, res, err
}

// UpdateStorage mutates a storage location.
func (s *Service) UpdateStorage(ctx context.Context, id string, mutator func(*domain.Storage) error) (domain.Storage, domain.Result, error) {
	var updated domain.Storage
	res, err := s.run(ctx, "update_storage", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateStorage(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteStorage removes an empty storage location.
func (s *Service) DeleteStorage(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, "delete_storage", func(tx domain.Transaction) error {
		return tx.DeleteStorage(id)
	})
}

// GetStorage looks up a storage location; ok is false when it does not exist.
func (s *Service) GetStorage(ctx context.Context, id string) (storage domain.Storage, ok bool, err error) {
	err = s.view(ctx, "get_storage", func(v domain.TransactionView) error {
		storage, ok, err = v.FindStorage(id)
		return err
	})
	return storage, ok, err
}

// ListStorages returns all storage locations ordered by name.
func (s *Service) ListStorages(ctx context.Context) ([]domain.Storage, error) {
	var out []domain.Storage
	err := s.view(ctx, "list_storages", func(v domain.TransactionView) error {
		var err error
		out, err = v.ListStorages()
		return err
	})
	return out, err
}

// BrowseStorage returns a storage location with its reagents.
func (s *Service) BrowseStorage(ctx context.Context, id string) (Rack, bool, error) {
	var (
		rack Rack
		ok   bool
	)
	err := s.view(ctx, "browse_storage", func(v domain.TransactionView) error {
		var err error
		rack.Storage, ok, err = v.FindStorage(id)
		if err != nil || !ok {
			return err
		}
		rack.Reagents, err = v.ListReagentsByStorage(id)
		return err
	})
	return rack, ok, err
}
