package schedule

import (
	"fmt"
	"time"

	"spadesk/internal/catalog"
	"spadesk/internal/model"
)

// LegPlan is one computed combo leg before a resource is assigned.
type LegPlan struct {
	Leg      model.ComboLeg
	Category catalog.Category
	Start    time.Time
	End      time.Time
}

// ComboPlan holds both legs of a combo request.
type ComboPlan struct {
	Primary      LegPlan
	Addon        LegPlan
	HeadSpaFirst bool
}

// Legs returns the plans in search order: primary first.
func (p ComboPlan) Legs() []LegPlan {
	return []LegPlan{p.Primary, p.Addon}
}

// SplitCombo computes the two legs of a combo service starting at start.
// With headSpaFirst the head-spa add-on runs first and the primary treatment follows it.
func SplitCombo(svc catalog.Service, start time.Time, headSpaFirst bool) (ComboPlan, error) {
	if !svc.IsCombo() {
		return ComboPlan{}, fmt.Errorf("service %d: %w", svc.ID, model.ErrNotCombo)
	}
	massage := time.Duration(svc.MassageMinutes) * time.Minute
	spa := time.Duration(svc.HeadSpaMinutes) * time.Minute
	if massage <= 0 || spa <= 0 {
		return ComboPlan{}, fmt.Errorf("service %d has no leg durations: %w", svc.ID, model.ErrInvalidInterval)
	}

	primaryCat, addonCat := catalog.ComboCategories(svc)
	plan := ComboPlan{
		Primary:      LegPlan{Leg: model.LegPrimary, Category: primaryCat},
		Addon:        LegPlan{Leg: model.LegHeadSpaAddon, Category: addonCat},
		HeadSpaFirst: headSpaFirst,
	}

	if headSpaFirst {
		plan.Addon.Start = start
		plan.Addon.End = start.Add(spa)
		plan.Primary.Start = plan.Addon.End
		plan.Primary.End = plan.Primary.Start.Add(massage)
	} else {
		plan.Primary.Start = start
		plan.Primary.End = start.Add(massage)
		plan.Addon.Start = plan.Primary.End
		plan.Addon.End = plan.Addon.Start.Add(spa)
	}
	return plan, nil
}

// ReplanPair recomputes an existing pair for a new start, keeping the stored leg order and
// the stored leg lengths. primary is the category the main leg must stay in.
func ReplanPair(pair model.ComboPair, start time.Time, primary catalog.Category) ComboPlan {
	headSpaFirst := pair.HeadSpaFirst()
	massage := pair.Primary.Duration()
	spa := pair.Addon.Duration()

	plan := ComboPlan{
		Primary:      LegPlan{Leg: model.LegPrimary, Category: primary},
		Addon:        LegPlan{Leg: model.LegHeadSpaAddon, Category: catalog.CategoryHeadSpa},
		HeadSpaFirst: headSpaFirst,
	}
	if headSpaFirst {
		plan.Addon.Start, plan.Addon.End = start, start.Add(spa)
		plan.Primary.Start, plan.Primary.End = plan.Addon.End, plan.Addon.End.Add(massage)
	} else {
		plan.Primary.Start, plan.Primary.End = start, start.Add(massage)
		plan.Addon.Start, plan.Addon.End = plan.Primary.End, plan.Primary.End.Add(spa)
	}
	return plan
}
