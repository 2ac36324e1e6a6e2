package meter

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carsim"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
)

func findValue(entry ocpp16.MeterValueEntry, measurand, phase string) (string, bool) {
	for _, sv := range entry.SampledValue {
		if sv.Measurand == measurand && sv.Phase == phase {
			return sv.Value, true
		}
	}
	return "", false
}

func countPhases(entry ocpp16.MeterValueEntry) map[string]int {
	counts := map[string]int{}
	for _, sv := range entry.SampledValue {
		if sv.Phase != "" {
			counts[sv.Phase]++
		}
	}
	return counts
}

func hasMeasurandLocation(entry ocpp16.MeterValueEntry, measurand, location string) bool {
	for _, sv := range entry.SampledValue {
		if sv.Measurand == measurand && sv.Location == location {
			return true
		}
	}
	return false
}

func TestBuildEntryAccumulatesEnergyRegisterFromReportedPower(t *testing.T) {
	b := NewBuilder(1, 1000, rand.New(rand.NewSource(1)))

	entry1, delta1 := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, ActualCurrentA: 16})
	powerStr, ok := findValue(entry1, "Power.Active.Import", "")
	require.True(t, ok)
	power, err := strconv.ParseFloat(powerStr, 64)
	require.NoError(t, err)
	assert.InDelta(t, power*15/3600, delta1, 0.01)

	registerStr, ok := findValue(entry1, "Energy.Active.Import.Register", "")
	require.True(t, ok)
	register, err := strconv.ParseFloat(registerStr, 64)
	require.NoError(t, err)
	assert.InDelta(t, 1000+delta1, register, 0.6)

	_, delta2 := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, ActualCurrentA: 16})
	assert.InDelta(t, delta1, delta2, 0.5, "same draw over the same interval should add roughly the same energy")
}

func TestBuildEntryReportedPowerIsSumOfPerPhaseVoltageTimesCurrent(t *testing.T) {
	b := NewBuilder(3, 0, rand.New(rand.NewSource(9)))
	entry, _ := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, ActualCurrentA: 12})

	powerStr, ok := findValue(entry, "Power.Active.Import", "")
	require.True(t, ok)
	power, err := strconv.ParseFloat(powerStr, 64)
	require.NoError(t, err)

	var want float64
	for _, phase := range []string{"L1", "L2", "L3"} {
		vStr, ok := findValue(entry, "Voltage", phase)
		require.True(t, ok)
		v, err := strconv.ParseFloat(vStr, 64)
		require.NoError(t, err)
		iStr, ok := findValue(entry, "Current.Import", phase)
		require.True(t, ok)
		i, err := strconv.ParseFloat(iStr, 64)
		require.NoError(t, err)
		want += v * i
	}
	// Each voltage is printed to 0.1 V (up to 0.05 V * 12 A off per phase) and
	// power to 1 W, so the printed values can disagree by 3*0.6 + 0.5 = 2.3 W.
	assert.InDelta(t, want, power, 2.3, "reported power must equal the sum of per-phase sagged voltage times current")
}

func TestBuildEntryIdleDrawReportsZeroPowerAndEnergy(t *testing.T) {
	b := NewBuilder(1, 500, rand.New(rand.NewSource(10)))
	entry, delta := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, ActualCurrentA: 0})

	assert.Equal(t, 0.0, delta)
	v, ok := findValue(entry, "Energy.Active.Import.Register", "")
	require.True(t, ok)
	assert.Equal(t, "500", v)
}

func TestBuildEntryEmitsExactlyPhaseCountVoltageAndCurrentPairs(t *testing.T) {
	b := NewBuilder(1, 0, rand.New(rand.NewSource(2)))
	entry, _ := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, ActualCurrentA: 16})

	phases := countPhases(entry)
	require.Len(t, phases, 1)
	assert.Equal(t, 2, phases["L1"], "one phase should produce a voltage and a current sample")
	assert.Equal(t, 0, phases["L2"])
}

func TestBuildEntryThreePhaseEmitsThreePhaseLabels(t *testing.T) {
	b := NewBuilder(3, 0, rand.New(rand.NewSource(3)))
	entry, _ := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, ActualCurrentA: 10})

	phases := countPhases(entry)
	assert.Equal(t, 2, phases["L1"])
	assert.Equal(t, 2, phases["L2"])
	assert.Equal(t, 2, phases["L3"])
}

func TestBuildEntryIncludesSocOnlyWhenCarAttached(t *testing.T) {
	b := NewBuilder(1, 0, rand.New(rand.NewSource(4)))

	noCar, _ := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15})
	_, ok := findValue(noCar, "SoC", "")
	assert.False(t, ok)

	soc := 0.55
	withCar, _ := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, Soc: &soc})
	v, ok := findValue(withCar, "SoC", "")
	require.True(t, ok)
	assert.Equal(t, "55", v)
}

func TestBuildEntryTagsEverySampleWithALocation(t *testing.T) {
	b := NewBuilder(3, 0, rand.New(rand.NewSource(6)))
	soc := 0.5
	entry, _ := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15, ActualCurrentA: 10, Soc: &soc})

	for _, sv := range entry.SampledValue {
		assert.NotEmpty(t, sv.Location, "sample %s %s must carry a location", sv.Measurand, sv.Phase)
	}
	assert.True(t, hasMeasurandLocation(entry, "Energy.Active.Import.Register", "Outlet"))
	assert.True(t, hasMeasurandLocation(entry, "Current.Offered", "Outlet"))
	assert.True(t, hasMeasurandLocation(entry, "Power.Active.Import", "Outlet"))
	assert.True(t, hasMeasurandLocation(entry, "Voltage", "Outlet"))
	assert.True(t, hasMeasurandLocation(entry, "Current.Import", "Outlet"))
	assert.True(t, hasMeasurandLocation(entry, "SoC", "EV"))
}

func TestBuildEntryIncludesBodyAndCableTemperature(t *testing.T) {
	b := NewBuilder(1, 0, rand.New(rand.NewSource(5)))
	entry, _ := b.BuildEntry(Sample{Timestamp: time.Now(), IntervalSeconds: 15})

	assert.True(t, hasMeasurandLocation(entry, "Temperature", "Body"))
	assert.True(t, hasMeasurandLocation(entry, "Temperature", "Cable"))
}

func TestSampleFromTickCarriesSocAndTransactionID(t *testing.T) {
	txID := 7
	tick := carsim.TickResult{ActualCurrentA: 16, PowerW: 3680, EnergyDeltaWh: 15, Soc: 0.42}
	s := SampleFromTick(time.Now(), 16, 15, tick, &txID)

	require.NotNil(t, s.Soc)
	assert.Equal(t, 0.42, *s.Soc)
	require.NotNil(t, s.TransactionID)
	assert.Equal(t, 7, *s.TransactionID)
	assert.Equal(t, 15.0, s.IntervalSeconds)
}
