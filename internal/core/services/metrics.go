package services

import (
	"math"

	"github.com/planfab/planfab/internal/core/domain"
)

// ProductionMetrics is the result of a duration/cost computation.
type ProductionMetrics struct {
	DurationHours float64
	Cost          float64
}

// ComputeMetrics derives duration and cost from phase parameters. Pure
// function: the scheduler invokes it whenever production parameters change,
// before any scheduling decision is made.
//
// When the phase carries a bag step, the produced quantity is rounded up to
// whole bags first, since partial bags cannot be produced.
func ComputeMetrics(phase domain.Phase, quantity int) ProductionMetrics {
	qty := float64(quantity)
	if phase.BagStep != nil && *phase.BagStep > 0 {
		step := float64(*phase.BagStep)
		qty = math.Ceil(qty/step) * step
	}

	hours := (phase.SetupMinutes + qty*phase.CycleMinutes) / 60
	return ProductionMetrics{
		DurationHours: hours,
		Cost:          hours*phase.HourlyRate + qty*phase.UnitCost,
	}
}
