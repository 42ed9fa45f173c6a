package domain

import "fmt"

// RuleStockOverdraw names the advisory violation raised when a usage consumes
// more than the reagent has on hand.
const RuleStockOverdraw = "stock_overdraw"

// UsageChange is the input of the stock ledger: the stock read from the
// reagent at write time and the amount entered for a new or edited usage.
type UsageChange struct {
	CurrentStock int
	IsNew        bool
	NewAmount    int
	// OriginalAmount is the stored amount before an edit; ignored when IsNew.
	OriginalAmount int
}

// StockAdjustment is the outcome of applying a usage change to a reagent's stock.
type StockAdjustment struct {
	CurrentStock int `json:"current_stock"`
	NetChange    int `json:"net_change"`
	NewStock     int `json:"new_stock"`
}

// NetChange returns the signed amount a usage write consumes. Edits only
// consume the difference to the stored amount; a downward edit is negative
// and returns units to stock.
func NetChange(isNew bool, newAmount, originalAmount int) int {
	if isNew {
		return newAmount
	}
	return newAmount - originalAmount
}

// ApplyNetChange subtracts net from current, never going below zero. There is
// no upper bound.
func ApplyNetChange(current, net int) int {
	return max(0, current-net)
}

// PlanUsage computes the stock adjustment for a usage write without touching storage.
func PlanUsage(c UsageChange) StockAdjustment {
	net := NetChange(c.IsNew, c.NewAmount, c.OriginalAmount)
	return StockAdjustment{
		CurrentStock: c.CurrentStock,
		NetChange:    net,
		NewStock:     ApplyNetChange(c.CurrentStock, net),
	}
}

// Warn reports whether the usage consumes more than is on hand. The warning is
// advisory; saving is still allowed.
func (a StockAdjustment) Warn() bool { return a.NetChange > a.CurrentStock }

// Excess is the amount by which the usage exceeds current stock, or zero.
func (a StockAdjustment) Excess() int {
	if !a.Warn() {
		return 0
	}
	return a.NetChange - a.CurrentStock
}

// Delta is the signed change applied to the stored stock (NewStock - CurrentStock).
func (a StockAdjustment) Delta() int { return a.NewStock - a.CurrentStock }

// WarningMessage describes the over-consumption, or returns "" when there is none.
func (a StockAdjustment) WarningMessage() string {
	if !a.Warn() {
		return ""
	}
	return fmt.Sprintf("exceeds current stock by %d", a.Excess())
}

// Result expresses the adjustment as a rules result so it can be merged with
// the store's own rule evaluation.
func (a StockAdjustment) Result(reagentID string) Result {
	if !a.Warn() {
		return Result{}
	}
	return Result{Violations: []Violation{{
		Rule:     RuleStockOverdraw,
		Severity: SeverityWarn,
		Message:  a.WarningMessage(),
		Entity:   EntityReagent,
		EntityID: reagentID,
	}}}
}
