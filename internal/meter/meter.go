// Package meter assembles OCPP MeterValue samples from a connector's live
// state: energy, offered current, per-phase voltage and current, and
// optionally the attached car's state of charge.
package meter

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carsim"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
)

// baseVoltage is the nominal per-phase RMS voltage before the sag model is
// applied.
const baseVoltage = 232.0

// Builder accumulates a connector's energy register across ticks and
// assembles SampledValue slices for MeterValues.req and the transactionData
// attached to StopTransaction.req.
type Builder struct {
	Phases     int
	EnergyWh   float64
	BodyTempC  float64
	CableTempC float64
	rng        *rand.Rand
}

// NewBuilder creates a meter builder for a connector with the given phase
// count, starting the energy register at startWh (the meter reading at the
// time the builder is created, e.g. at boot or at StartTransaction).
func NewBuilder(phases int, startWh float64, rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Builder{
		Phases:     phases,
		EnergyWh:   startWh,
		BodyTempC:  20,
		CableTempC: 19,
		rng:        rng,
	}
}

// Sample is one tick's worth of meter data: the current draw (from the car
// simulator, or zero when idle), the offered current, and the interval the
// sample covers. Reported power and the energy register increment are
// derived inside BuildEntry from the per-phase sagged voltage times this
// current, per the §4.H model — not carried in from the caller.
type Sample struct {
	Timestamp       time.Time
	IntervalSeconds float64
	OfferedCurrentA float64
	ActualCurrentA  float64
	Soc             *float64 // nil when no car is attached
	TransactionID   *int
}

// BuildEntry derives the per-phase sagged voltage and reported power from
// the sample's current draw, folds the resulting energy increment into the
// running register, and returns the MeterValueEntry to attach to a
// MeterValues.req or StopTransaction.req's transactionData, along with the
// Wh increment just added to the register (for the caller's own energy
// counters to stay in step with what was reported).
func (b *Builder) BuildEntry(s Sample) (ocpp16.MeterValueEntry, float64) {
	ts := s.Timestamp.UTC().Format(time.RFC3339)

	perPhaseA := s.ActualCurrentA
	phaseValues := make([]ocpp16.SampledValue, 0, b.Phases*2)
	var reportedPower float64
	for i := 0; i < b.Phases; i++ {
		phase := fmt.Sprintf("L%d", i+1)
		sag := baseVoltage - 0.15*perPhaseA + (b.rng.Float64() - 0.5)
		reportedPower += sag * perPhaseA
		phaseValues = append(phaseValues,
			ocpp16.SampledValue{
				Value:     fmt.Sprintf("%.1f", sag),
				Measurand: "Voltage",
				Phase:     phase,
				Location:  "Outlet",
				Unit:      "V",
				Context:   "Sample.Periodic",
			},
			ocpp16.SampledValue{
				Value:     fmt.Sprintf("%.2f", perPhaseA),
				Measurand: "Current.Import",
				Phase:     phase,
				Location:  "Outlet",
				Unit:      "A",
				Context:   "Sample.Periodic",
			},
		)
	}

	energyDeltaWh := reportedPower * s.IntervalSeconds / 3600
	b.EnergyWh += energyDeltaWh

	values := []ocpp16.SampledValue{
		{
			Value:     fmt.Sprintf("%.0f", b.EnergyWh),
			Measurand: "Energy.Active.Import.Register",
			Location:  "Outlet",
			Unit:      "Wh",
			Context:   "Sample.Periodic",
		},
		{
			Value:     fmt.Sprintf("%.2f", s.OfferedCurrentA),
			Measurand: "Current.Offered",
			Location:  "Outlet",
			Unit:      "A",
			Context:   "Sample.Periodic",
		},
		{
			Value:     fmt.Sprintf("%.0f", reportedPower),
			Measurand: "Power.Active.Import",
			Location:  "Outlet",
			Unit:      "W",
			Context:   "Sample.Periodic",
		},
		{
			Value:     fmt.Sprintf("%.1f", b.BodyTempC+b.rng.Float64()*2-1),
			Measurand: "Temperature",
			Location:  "Body",
			Unit:      "Celsius",
			Context:   "Sample.Periodic",
		},
		{
			Value:     fmt.Sprintf("%.1f", b.CableTempC+b.rng.Float64()*2-1),
			Measurand: "Temperature",
			Location:  "Cable",
			Unit:      "Celsius",
			Context:   "Sample.Periodic",
		},
	}
	values = append(values, phaseValues...)

	if s.Soc != nil {
		values = append(values, ocpp16.SampledValue{
			Value:     fmt.Sprintf("%.0f", *s.Soc*100),
			Measurand: "SoC",
			Location:  "EV",
			Unit:      "Percent",
			Context:   "Sample.Periodic",
		})
	}

	return ocpp16.MeterValueEntry{Timestamp: ts, SampledValue: values}, energyDeltaWh
}

// SampleFromTick builds a Sample from a car simulator's TickResult, covering
// an interval of intervalSeconds.
func SampleFromTick(ts time.Time, offeredA float64, intervalSeconds float64, tick carsim.TickResult, transactionID *int) Sample {
	soc := tick.Soc
	return Sample{
		Timestamp:       ts,
		IntervalSeconds: intervalSeconds,
		OfferedCurrentA: offeredA,
		ActualCurrentA:  tick.ActualCurrentA,
		Soc:             &soc,
		TransactionID:   transactionID,
	}
}
