// Package seed loads an initial inventory from YAML through the core service.
// Seeding is idempotent: storages, reagents, users and materials that already
// exist by name are left untouched.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"labstock/internal/core"
	"labstock/pkg/domain"
)

// File is the YAML seed document.
type File struct {
	Storages  []Storage `yaml:"storages"`
	Users     []User    `yaml:"users"`
	Materials []string  `yaml:"materials"`
}

// Storage is a seeded storage location with its reagents.
type Storage struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Capacity    int       `yaml:"capacity"`
	Reagents    []Reagent `yaml:"reagents"`
}

// Reagent is a seeded reagent. Dates use YYYY-MM-DD.
type Reagent struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Form        string `yaml:"form"`
	HazardClass string `yaml:"hazard_class"`
	ReceivedAt  string `yaml:"received_at"`
	ExpiresAt   string `yaml:"expires_at"`
	Stock       int    `yaml:"stock"`
}

// User is a seeded account. Active defaults to true.
type User struct {
	Username  string `yaml:"username"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Password  string `yaml:"password"`
	Active    *bool  `yaml:"active"`
}

// Summary counts what a seed run created and skipped.
type Summary struct {
	Storages  int `json:"storages"`
	Reagents  int `json:"reagents"`
	Users     int `json:"users"`
	Materials int `json:"materials"`
	Skipped   int `json:"skipped"`
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parse seed: %w", err)
	}
	return f, nil
}

// LoadFile parses the seed document at path.
func LoadFile(path string) (File, error) {
	fh, err := os.Open(path) //nolint:gosec
	if err != nil {
		return File{}, err
	}
	defer func() { _ = fh.Close() }()
	return Parse(fh)
}

// Apply writes f through svc.
func Apply(ctx context.Context, svc *core.Service, f File) (Summary, error) {
	var sum Summary
	storages, err := svc.ListStorages(ctx)
	if err != nil {
		return sum, err
	}
	byName := make(map[string]domain.Storage, len(storages))
	for _, s := range storages {
		byName[s.Name] = s
	}

	for _, s := range f.Storages {
		storage, ok := byName[s.Name]
		if ok {
			sum.Skipped++
		} else {
			storage, _, err = svc.CreateStorage(ctx, domain.Storage{Name: s.Name, Description: s.Description, Capacity: s.Capacity})
			if err != nil {
				return sum, fmt.Errorf("storage %q: %w", s.Name, err)
			}
			byName[storage.Name] = storage
			sum.Storages++
		}
		if err := applyReagents(ctx, svc, storage, s.Reagents, &sum); err != nil {
			return sum, err
		}
	}

	for _, u := range f.Users {
		created, err := applyUser(ctx, svc, u)
		if err != nil {
			return sum, fmt.Errorf("user %q: %w", u.Username, err)
		}
		if created {
			sum.Users++
		} else {
			sum.Skipped++
		}
	}

	existing, err := svc.ListSupportingMaterials(ctx)
	if err != nil {
		return sum, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		known[domain.MaterialKey(m.Name)] = struct{}{}
	}
	for _, name := range f.Materials {
		if _, dup := known[domain.MaterialKey(name)]; dup {
			sum.Skipped++
			continue
		}
		m, _, err := svc.AddSupportingMaterial(ctx, name)
		if err != nil {
			return sum, fmt.Errorf("material %q: %w", name, err)
		}
		known[domain.MaterialKey(m.Name)] = struct{}{}
		sum.Materials++
	}
	return sum, nil
}

func applyReagents(ctx context.Context, svc *core.Service, storage domain.Storage, reagents []Reagent, sum *Summary) error {
	rack, _, err := svc.BrowseStorage(ctx, storage.ID)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(rack.Reagents))
	for _, r := range rack.Reagents {
		present[r.Name] = struct{}{}
	}
	for _, r := range reagents {
		if _, ok := present[r.Name]; ok {
			sum.Skipped++
			continue
		}
		reagent := domain.Reagent{Name: r.Name, StorageID: storage.ID}
		fields := map[string]any{
			domain.FieldDescription: r.Description,
			domain.FieldForm:        r.Form,
			domain.FieldHazardClass: r.HazardClass,
			domain.FieldReceivedAt:  r.ReceivedAt,
			domain.FieldExpiresAt:   r.ExpiresAt,
			domain.FieldStock:       r.Stock,
		}
		if err := domain.ApplyReagentFields(&reagent, fields); err != nil {
			return fmt.Errorf("reagent %q: %w", r.Name, err)
		}
		if _, _, err := svc.CreateReagent(ctx, reagent); err != nil {
			return fmt.Errorf("reagent %q: %w", r.Name, err)
		}
		present[r.Name] = struct{}{}
		sum.Reagents++
	}
	return nil
}

func applyUser(ctx context.Context, svc *core.Service, u User) (bool, error) {
	_, _, err := svc.RegisterUser(ctx, domain.User{Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}, u.Password)
	if domain.IsConflict(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if u.Active != nil && !*u.Active {
		if _, _, err := svc.SetUserActive(ctx, u.Username, false); err != nil {
			return true, err
		}
	}
	return true, nil
}
