package core

import (
	"context"

	"labstock/pkg/domain"
)

// AddSupportingMaterial registers a material name. Adding a name that differs
// only in case or spacing returns the existing entry.
func (s *Service) AddSupportingMaterial(ctx context.Context, name string) (domain.SupportingMaterial, domain.Result, error) {
	var m domain.SupportingMaterial
	res, err := s.run(ctx, "add_supporting_material", func(tx domain.Transaction) error {
		var err error
		m, err = tx.EnsureSupportingMaterial(name)
		return err
	})
	return m, res, err
}

// ListSupportingMaterials returns all materials ordered by name.
func (s *Service) ListSupportingMaterials(ctx context.Context) ([]domain.SupportingMaterial, error) {
	var out []domain.SupportingMaterial
	err := s.view(ctx, "list_supporting_materials", func(v domain.TransactionView) error {
		var err error
		out, err = v.ListSupportingMaterials()
		return err
	})
	return out, err
}

// DeleteSupportingMaterial removes a material. Usage notes are not touched.
func (s *Service) DeleteSupportingMaterial(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, "delete_supporting_material", func(tx domain.Transaction) error {
		return tx.DeleteSupportingMaterial(id)
	})
}
