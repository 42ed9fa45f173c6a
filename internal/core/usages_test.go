package core

import (
	"context"
	"testing"
	"time"

	"labstock/pkg/domain"
)

func TestLogUsageOverConsumptionWarnsAndClamps(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 10)

		preview, err := svc.PreviewUsage(ctx, domain.UsageRecord{ReagentID: reagent.ID, Amount: 15})
		if err != nil {
			t.Fatalf("preview: %v", err)
		}
		if !preview.Warn() || preview.WarningMessage() != "exceeds current stock by 5" {
			t.Fatalf("unexpected preview %+v", preview)
		}
		if got := mustStock(t, svc, reagent.ID); got != 10 {
			t.Fatalf("preview must not write, stock=%d", got)
		}

		out, res, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: reagent.ID, Amount: 15, UserName: "ana"})
		if err != nil {
			t.Fatalf("log usage: %v", err)
		}
		if out.Reagent.Stock != 0 || out.Adjustment.Excess() != 5 {
			t.Fatalf("unexpected outcome %+v", out)
		}
		if !hasViolation(res, domain.RuleStockOverdraw, domain.SeverityWarn) {
			t.Fatalf("expected stock_overdraw warning, got %+v", res)
		}
		if got := mustStock(t, svc, reagent.ID); got != 0 {
			t.Fatalf("expected stock 0, got %d", got)
		}
		if out.Usage.ID == "" || out.Usage.UsedAt.IsZero() {
			t.Fatalf("usage not persisted: %+v", out.Usage)
		}
	})
}

func TestEditUsageDownwardRestocks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 8)
		logged, _, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: reagent.ID, Amount: 3, UserName: "ana"})
		if err != nil {
			t.Fatalf("log usage: %v", err)
		}
		if logged.Reagent.Stock != 5 {
			t.Fatalf("expected stock 5 after logging, got %d", logged.Reagent.Stock)
		}

		preview, err := svc.PreviewUsage(ctx, domain.UsageRecord{Base: domain.Base{ID: logged.Usage.ID}, Amount: 1})
		if err != nil || preview.NetChange != -2 || preview.Warn() {
			t.Fatalf("unexpected edit preview %+v err=%v", preview, err)
		}

		edited, res, err := svc.EditUsage(ctx, logged.Usage.ID, func(u *domain.UsageRecord) error {
			u.Amount = 1
			return nil
		})
		if err != nil {
			t.Fatalf("edit usage: %v", err)
		}
		if edited.Adjustment.NetChange != -2 || edited.Reagent.Stock != 7 {
			t.Fatalf("unexpected edit outcome %+v", edited)
		}
		if hasViolation(res, domain.RuleStockOverdraw, domain.SeverityWarn) {
			t.Fatalf("downward edit must not warn")
		}
		if edited.Usage.Amount != 1 {
			t.Fatalf("amount not updated: %+v", edited.Usage)
		}
	})
}

func TestEditUsageWarnsOnlyOnDifference(t *testing.T) {
	svc := NewInMemoryService(nil)
	ctx := context.Background()
	reagent := seedReagent(t, svc, 10)
	logged, _, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: reagent.ID, Amount: 6, UserName: "ana"})
	if err != nil {
		t.Fatalf("log usage: %v", err)
	}
	// stock is 4; raising 6 -> 9 consumes 3 more, within stock
	out, res, err := svc.EditUsage(ctx, logged.Usage.ID, func(u *domain.UsageRecord) error {
		u.Amount = 9
		return nil
	})
	if err != nil || out.Reagent.Stock != 1 || len(res.Warnings()) != 0 {
		t.Fatalf("unexpected outcome %+v res=%+v err=%v", out, res, err)
	}
	out, res, err = svc.EditUsage(ctx, logged.Usage.ID, func(u *domain.UsageRecord) error {
		u.Amount = 12
		return nil
	})
	if err != nil || out.Reagent.Stock != 0 || out.Adjustment.Excess() != 2 {
		t.Fatalf("unexpected outcome %+v err=%v", out, err)
	}
	if !hasViolation(res, domain.RuleStockOverdraw, domain.SeverityWarn) {
		t.Fatalf("expected warning, got %+v", res)
	}
}

func TestZeroAmountUsageLeavesStock(t *testing.T) {
	svc := NewInMemoryService(nil)
	reagent := seedReagent(t, svc, 4)
	out, res, err := svc.LogUsage(context.Background(), domain.UsageRecord{ReagentID: reagent.ID, Amount: 0, UserName: "ana"})
	if err != nil {
		t.Fatalf("log usage: %v", err)
	}
	if out.Reagent.Stock != 4 || out.Adjustment.NetChange != 0 || len(res.Warnings()) != 0 {
		t.Fatalf("unexpected outcome %+v res=%+v", out, res)
	}
}

func TestDeleteUsageKeepsStock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 10)
		logged, _, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: reagent.ID, Amount: 4, UserName: "ana"})
		if err != nil {
			t.Fatalf("log usage: %v", err)
		}
		if _, err := svc.DeleteUsage(ctx, logged.Usage.ID); err != nil {
			t.Fatalf("delete usage: %v", err)
		}
		if got := mustStock(t, svc, reagent.ID); got != 6 {
			t.Fatalf("delete must not restock, got %d", got)
		}
		if _, ok, err := svc.GetUsage(ctx, logged.Usage.ID); err != nil || ok {
			t.Fatalf("expected usage gone, ok=%v err=%v", ok, err)
		}
		if _, err := svc.DeleteUsage(ctx, logged.Usage.ID); !domain.IsNotFound(err) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
	})
}

func TestLogUsageValidationRejectsBeforeWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 10)
		cases := []domain.UsageRecord{
			{ReagentID: reagent.ID, Amount: 2, UserName: "  "},
			{ReagentID: reagent.ID, Amount: -1, UserName: "ana"},
			{Amount: 1, UserName: "ana"},
		}
		for _, u := range cases {
			if _, _, err := svc.LogUsage(ctx, u); !domain.IsValidation(err) {
				t.Fatalf("expected validation error for %+v, got %v", u, err)
			}
		}
		if _, _, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: "missing", Amount: 1, UserName: "ana"}); !domain.IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
		usages, err := svc.ListUsagesByReagent(ctx, reagent.ID)
		if err != nil || len(usages) != 0 {
			t.Fatalf("expected no usages, got %v err=%v", usages, err)
		}
		if got := mustStock(t, svc, reagent.ID); got != 10 {
			t.Fatalf("stock changed by rejected writes: %d", got)
		}
	})
}

func TestEditUsageRejectsReagentChange(t *testing.T) {
	svc := NewInMemoryService(nil)
	ctx := context.Background()
	first := seedReagent(t, svc, 10)
	second, _, err := svc.CreateReagent(ctx, domain.Reagent{Name: "Acetone", StorageID: first.StorageID, Stock: 3})
	if err != nil {
		t.Fatalf("create reagent: %v", err)
	}
	logged, _, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: first.ID, Amount: 2, UserName: "ana"})
	if err != nil {
		t.Fatalf("log usage: %v", err)
	}
	_, _, err = svc.EditUsage(ctx, logged.Usage.ID, func(u *domain.UsageRecord) error {
		u.ReagentID = second.ID
		return nil
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if mustStock(t, svc, first.ID) != 8 || mustStock(t, svc, second.ID) != 3 {
		t.Fatalf("stocks changed by rejected edit")
	}
	if _, _, err := svc.EditUsage(ctx, "missing", func(*domain.UsageRecord) error { return nil }); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUsageQueriesAndNotes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 100)
		day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		for i, u := range []domain.UsageRecord{
			{UserName: "Ana", Amount: 1, Note: "PCR buffer", UsedAt: day.Add(48 * time.Hour)},
			{UserName: "ana", Amount: 2, Note: "pcr  Buffer", UsedAt: day},
			{UserName: "Ana", Amount: 3, UsedAt: day.Add(24 * time.Hour)},
		} {
			u.ReagentID = reagent.ID
			if _, _, err := svc.LogUsage(ctx, u); err != nil {
				t.Fatalf("log usage %d: %v", i, err)
			}
		}
		byUser, err := svc.ListUsagesByUser(ctx, "Ana")
		if err != nil || len(byUser) != 2 {
			t.Fatalf("expected 2 usages for Ana, got %v err=%v", byUser, err)
		}
		if byUser[0].Amount != 3 || byUser[1].Amount != 1 {
			t.Fatalf("expected usages ordered by date, got %+v", byUser)
		}
		byReagent, err := svc.ListUsagesByReagent(ctx, reagent.ID)
		if err != nil || len(byReagent) != 3 || byReagent[0].Amount != 2 {
			t.Fatalf("unexpected reagent usages %+v err=%v", byReagent, err)
		}
		materials, err := svc.ListSupportingMaterials(ctx)
		if err != nil || len(materials) != 1 || materials[0].Name != "PCR buffer" {
			t.Fatalf("expected one deduplicated material, got %+v err=%v", materials, err)
		}
		if got := mustStock(t, svc, reagent.ID); got != 94 {
			t.Fatalf("expected stock 94, got %d", got)
		}
	})
}

func TestLogUsageDefaultsDateToClock(t *testing.T) {
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	svc := NewInMemoryService(nil, WithClock(stubClock{t: fixed}))
	reagent := seedReagent(t, svc, 1)
	out, _, err := svc.LogUsage(context.Background(), domain.UsageRecord{ReagentID: reagent.ID, Amount: 1, UserName: "ana"})
	if err != nil {
		t.Fatalf("log usage: %v", err)
	}
	if !out.Usage.UsedAt.Equal(fixed) || !out.Usage.CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock timestamps, got %+v", out.Usage)
	}
}
