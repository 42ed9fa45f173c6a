// Package persistencetest holds the behavioural contract every
// domain.PersistentStore backend must satisfy.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labstock/pkg/domain"
)

// Opener returns a fresh, empty store wired to engine. Stores are closed by
// the contract through t.Cleanup.
type Opener func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, Opener)
	}{
		{"StorageLifecycle", storageLifecycle},
		{"ReagentLifecycle", reagentLifecycle},
		{"UsageQueries", usageQueries},
		{"UsageDeleteKeepsStock", usageDeleteKeepsStock},
		{"RollbackOnError", rollbackOnError},
		{"BlockingRuleRollsBack", blockingRuleRollsBack},
		{"WarnRuleCommits", warnRuleCommits},
		{"Users", users},
		{"SupportingMaterials", supportingMaterials},
		{"NotFound", notFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, open) })
	}
}

func openStore(t *testing.T, open Opener, rules ...domain.Rule) domain.PersistentStore {
	t.Helper()
	engine := domain.NewRulesEngine()
	for _, r := range rules {
		engine.Register(r)
	}
	store := open(t, engine)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func run(t *testing.T, store domain.PersistentStore, fn func(domain.Transaction) error) domain.Result {
	t.Helper()
	res, err := store.RunInTransaction(context.Background(), fn)
	require.NoError(t, err)
	return res
}

func seedReagent(t *testing.T, store domain.PersistentStore, stock int) (domain.Storage, domain.Reagent) {
	t.Helper()
	var storage domain.Storage
	var reagent domain.Reagent
	run(t, store, func(tx domain.Transaction) error {
		var err error
		storage, err = tx.CreateStorage(domain.Storage{Name: "Rack A", Capacity: 4})
		if err != nil {
			return err
		}
		reagent, err = tx.CreateReagent(domain.Reagent{Name: "Ethanol", Form: domain.FormLiquid, Stock: stock, StorageID: storage.ID})
		return err
	})
	return storage, reagent
}

func findReagent(t *testing.T, store domain.PersistentStore, id string) domain.Reagent {
	t.Helper()
	var out domain.Reagent
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		r, ok, err := v.FindReagent(id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
		}
		out = r
		return nil
	}))
	return out
}

func storageLifecycle(t *testing.T, open Opener) {
	store := openStore(t, open)
	var created domain.Storage
	run(t, store, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateStorage(domain.Storage{Name: "Rack B", Description: "cold room", Capacity: 2})
		return err
	})
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	run(t, store, func(tx domain.Transaction) error {
		_, err := tx.CreateStorage(domain.Storage{Name: "Rack A"})
		return err
	})
	run(t, store, func(tx domain.Transaction) error {
		updated, err := tx.UpdateStorage(created.ID, func(s *domain.Storage) error {
			s.Capacity = 6
			s.ID = "ignored"
			return nil
		})
		if err != nil {
			return err
		}
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, 6, updated.Capacity)
		return nil
	})

	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		list, err := v.ListStorages()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Rack A", list[0].Name)
		assert.Equal(t, "Rack B", list[1].Name)
		got, ok, err := v.FindStorage(created.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "cold room", got.Description)
		assert.Equal(t, 6, got.Capacity)
		return nil
	}))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateStorage(domain.Storage{Name: "  "})
		return err
	})
	assert.True(t, domain.IsValidation(err))

	run(t, store, func(tx domain.Transaction) error { return tx.DeleteStorage(created.ID) })
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		_, ok, err := v.FindStorage(created.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func reagentLifecycle(t *testing.T, open Opener) {
	store := openStore(t, open)
	storage, reagent := seedReagent(t, store, 12)
	assert.Equal(t, storage.ID, reagent.StorageID)

	expires := time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC)
	imageKey := "reagents/" + reagent.ID + "/image"
	run(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdateReagent(reagent.ID, func(r *domain.Reagent) error {
			r.HazardClass = "flammable"
			r.ExpiresAt = &expires
			r.ImageKey = &imageKey
			r.Stock = 9
			return nil
		})
		return err
	})
	got := findReagent(t, store, reagent.ID)
	assert.Equal(t, "flammable", got.HazardClass)
	assert.Equal(t, 9, got.Stock)
	assert.Equal(t, domain.FormLiquid, got.Form)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.Nil(t, got.ReceivedAt)
	require.True(t, got.HasImage())
	assert.Equal(t, imageKey, *got.ImageKey)
	assert.False(t, got.HasSDS())

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateReagent(domain.Reagent{Name: "Orphan", StorageID: "missing"})
		return err
	})
	assert.True(t, domain.IsNotFound(err), "got %v", err)

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteStorage(storage.ID)
	})
	assert.True(t, domain.IsConflict(err), "got %v", err)

	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		list, err := v.ListReagentsByStorage(storage.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		none, err := v.ListReagentsByStorage("other")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))

	run(t, store, func(tx domain.Transaction) error { return tx.DeleteReagent(reagent.ID) })
	run(t, store, func(tx domain.Transaction) error { return tx.DeleteStorage(storage.ID) })
}

func usageQueries(t *testing.T, open Opener) {
	store := openStore(t, open)
	_, reagent := seedReagent(t, store, 20)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var first domain.UsageRecord
	run(t, store, func(tx domain.Transaction) error {
		var err error
		if _, err = tx.CreateUsage(domain.UsageRecord{ReagentID: reagent.ID, Amount: 2, UserName: "Ana", UsedAt: base.Add(time.Hour)}); err != nil {
			return err
		}
		first, err = tx.CreateUsage(domain.UsageRecord{ReagentID: reagent.ID, Amount: 3, UserName: "ana", Note: "pipette tips", UsedAt: base})
		return err
	})

	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		byReagent, err := v.ListUsagesByReagent(reagent.ID)
		require.NoError(t, err)
		require.Len(t, byReagent, 2)
		assert.Equal(t, first.ID, byReagent[0].ID)
		assert.True(t, base.Equal(byReagent[0].UsedAt))

		byUser, err := v.ListUsagesByUser("ana")
		require.NoError(t, err)
		require.Len(t, byUser, 1, "user name match is case sensitive")
		assert.Equal(t, "pipette tips", byUser[0].Note)

		none, err := v.ListUsagesByUser("bob")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))

	run(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdateUsage(first.ID, func(u *domain.UsageRecord) error {
			u.Amount = 1
			return nil
		})
		return err
	})
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		u, ok, err := v.FindUsage(first.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1, u.Amount)
		assert.Equal(t, "ana", u.UserName)
		return nil
	}))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUsage(domain.UsageRecord{ReagentID: "missing", Amount: 1, UserName: "ana"})
		return err
	})
	assert.True(t, domain.IsNotFound(err), "got %v", err)

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteReagent(reagent.ID)
	})
	assert.True(t, domain.IsConflict(err), "got %v", err)
}

func usageDeleteKeepsStock(t *testing.T, open Opener) {
	store := openStore(t, open)
	_, reagent := seedReagent(t, store, 10)
	var usage domain.UsageRecord
	run(t, store, func(tx domain.Transaction) error {
		var err error
		usage, err = tx.CreateUsage(domain.UsageRecord{ReagentID: reagent.ID, Amount: 4, UserName: "ana"})
		if err != nil {
			return err
		}
		_, err = tx.UpdateReagent(reagent.ID, func(r *domain.Reagent) error {
			r.Stock -= 4
			return nil
		})
		return err
	})
	run(t, store, func(tx domain.Transaction) error { return tx.DeleteUsage(usage.ID) })
	assert.Equal(t, 6, findReagent(t, store, reagent.ID).Stock)
}

func rollbackOnError(t *testing.T, open Opener) {
	store := openStore(t, open)
	_, reagent := seedReagent(t, store, 10)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateUsage(domain.UsageRecord{ReagentID: reagent.ID, Amount: 4, UserName: "ana"}); err != nil {
			return err
		}
		if _, err := tx.UpdateReagent(reagent.ID, func(r *domain.Reagent) error {
			r.Stock = 6
			return nil
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 10, findReagent(t, store, reagent.ID).Stock)
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		list, err := v.ListUsagesByReagent(reagent.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
		return nil
	}))
}

type severityRule struct {
	severity domain.Severity
}

func (r severityRule) Name() string { return "contract_" + string(r.severity) }

func (r severityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		if c.Entity != domain.EntityReagent || c.Action != domain.ActionUpdate {
			continue
		}
		after, ok := c.After.(domain.Reagent)
		if !ok {
			continue
		}
		current, found, err := view.FindReagent(after.ID)
		if err != nil {
			return domain.Result{}, err
		}
		if found && current.Stock == after.Stock {
			res.Violations = append(res.Violations, domain.Violation{
				Rule: r.Name(), Severity: r.severity, Entity: domain.EntityReagent, EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func blockingRuleRollsBack(t *testing.T, open Opener) {
	store := openStore(t, open, severityRule{severity: domain.SeverityBlock})
	_, reagent := seedReagent(t, store, 10)
	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateReagent(reagent.ID, func(r *domain.Reagent) error {
			r.Stock = 1
			return nil
		})
		return err
	})
	var rve domain.RuleViolationError
	require.ErrorAs(t, err, &rve)
	assert.True(t, res.HasBlocking())
	assert.Equal(t, 10, findReagent(t, store, reagent.ID).Stock)
}

func warnRuleCommits(t *testing.T, open Opener) {
	store := openStore(t, open, severityRule{severity: domain.SeverityWarn})
	_, reagent := seedReagent(t, store, 10)
	res := run(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdateReagent(reagent.ID, func(r *domain.Reagent) error {
			r.Stock = 3
			return nil
		})
		return err
	})
	require.Len(t, res.Warnings(), 1)
	assert.Equal(t, reagent.ID, res.Warnings()[0].EntityID)
	assert.Equal(t, 3, findReagent(t, store, reagent.ID).Stock)
}

func users(t *testing.T, open Opener) {
	store := openStore(t, open)
	var ana domain.User
	run(t, store, func(tx domain.Transaction) error {
		var err error
		ana, err = tx.CreateUser(domain.User{Username: "ana", FirstName: "Ana", LastName: "Lima", Password: "plain:pw", Active: true})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Username: "ana", Password: "x"})
		return err
	})
	assert.True(t, domain.IsConflict(err), "got %v", err)

	run(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdateUser(ana.ID, func(u *domain.User) error {
			u.Active = false
			return nil
		})
		return err
	})
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		u, ok, err := v.FindUserByUsername("ana")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, u.Active)
		assert.Equal(t, "plain:pw", u.Password)
		assert.Equal(t, "Ana Lima", u.FullName())
		_, ok, err = v.FindUserByUsername("ANA")
		require.NoError(t, err)
		assert.False(t, ok)
		list, err := v.ListUsers()
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	}))
	run(t, store, func(tx domain.Transaction) error { return tx.DeleteUser(ana.ID) })
}

func supportingMaterials(t *testing.T, open Opener) {
	store := openStore(t, open)
	var first, second domain.SupportingMaterial
	run(t, store, func(tx domain.Transaction) error {
		var err error
		if first, err = tx.EnsureSupportingMaterial("  Filter  paper "); err != nil {
			return err
		}
		if second, err = tx.EnsureSupportingMaterial("FILTER PAPER"); err != nil {
			return err
		}
		_, err = tx.EnsureSupportingMaterial("Beaker")
		return err
	})
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Filter paper", second.Name)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.EnsureSupportingMaterial("   ")
		return err
	})
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		list, err := v.ListSupportingMaterials()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Beaker", list[0].Name)
		return nil
	}))
	run(t, store, func(tx domain.Transaction) error { return tx.DeleteSupportingMaterial(first.ID) })
}

func notFound(t *testing.T, open Opener) {
	store := openStore(t, open)
	ops := map[string]func(domain.Transaction) error{
		"storage": func(tx domain.Transaction) error {
			_, err := tx.UpdateStorage("missing", func(*domain.Storage) error { return nil })
			return err
		},
		"reagent": func(tx domain.Transaction) error { return tx.DeleteReagent("missing") },
		"usage": func(tx domain.Transaction) error {
			_, err := tx.UpdateUsage("missing", func(*domain.UsageRecord) error { return nil })
			return err
		},
		"usage delete": func(tx domain.Transaction) error { return tx.DeleteUsage("missing") },
		"user":         func(tx domain.Transaction) error { return tx.DeleteUser("missing") },
		"material":     func(tx domain.Transaction) error { return tx.DeleteSupportingMaterial("missing") },
	}
	for name, op := range ops {
		_, err := store.RunInTransaction(context.Background(), op)
		assert.True(t, domain.IsNotFound(err), "%s: got %v", name, err)
	}
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		_, ok, err := v.FindReagent("missing")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = v.FindUsage("missing")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = v.FindUser("missing")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}
