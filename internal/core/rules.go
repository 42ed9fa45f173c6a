package core

import (
	"context"
	"fmt"

	"labstock/pkg/domain"
)

// Rule names registered by NewDefaultRulesEngine.
const (
	RuleStorageCapacity = "storage_capacity"
	RuleStockFloor      = "stock_floor"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewStorageCapacityRule())
	engine.Register(NewStockFloorRule())
	return engine
}

// NewStorageCapacityRule warns when a storage holds more reagents than its
// capacity. Capacity zero means unbounded.
func NewStorageCapacityRule() domain.Rule { return storageCapacityRule{} }

type storageCapacityRule struct{}

func (storageCapacityRule) Name() string { return RuleStorageCapacity }

func (storageCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, c := range changes {
		if c.Entity != domain.EntityReagent && c.Entity != domain.EntityStorage {
			continue
		}
		for _, v := range []any{c.Before, c.After} {
			switch e := v.(type) {
			case domain.Reagent:
				touched[e.StorageID] = struct{}{}
			case domain.Storage:
				touched[e.ID] = struct{}{}
			}
		}
	}

	var res domain.Result
	for id := range touched {
		storage, ok, err := view.FindStorage(id)
		if err != nil {
			return domain.Result{}, err
		}
		if !ok || storage.Capacity == 0 {
			continue
		}
		reagents, err := view.ListReagentsByStorage(id)
		if err != nil {
			return domain.Result{}, err
		}
		if len(reagents) > storage.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleStorageCapacity,
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("storage %s over capacity: %d/%d reagents", storage.Name, len(reagents), storage.Capacity),
				Entity:   domain.EntityStorage,
				EntityID: storage.ID,
			})
		}
	}
	return res, nil
}

// NewStockFloorRule blocks any write that leaves a reagent with negative stock.
func NewStockFloorRule() domain.Rule { return stockFloorRule{} }

type stockFloorRule struct{}

func (stockFloorRule) Name() string { return RuleStockFloor }

func (stockFloorRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	seen := make(map[string]struct{})
	for _, c := range changes {
		after, ok := c.After.(domain.Reagent)
		if !ok {
			continue
		}
		if _, dup := seen[after.ID]; dup {
			continue
		}
		seen[after.ID] = struct{}{}
		current, found, err := view.FindReagent(after.ID)
		if err != nil {
			return domain.Result{}, err
		}
		if found && current.Stock < 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleStockFloor,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("reagent %s stock would be %d", current.Name, current.Stock),
				Entity:   domain.EntityReagent,
				EntityID: current.ID,
			})
		}
	}
	return res, nil
}
