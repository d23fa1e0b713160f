// Package energy implements the Energy Accounting Engine (E): a
// stepwise integrator that reconstructs per-device power curves from a
// mixed stream of measured and state-derived samples. This is a direct
// port of devices/energy.py's algorithm (baseline selection, cursor
// integration, event-map aggregation, monthly projection).
package energy

import (
	"sort"
	"time"

	"github.com/homehub/core/internal/config"
	"github.com/homehub/core/internal/model"
	"github.com/homehub/core/internal/store"
)

// RangeBucket is one of the named query windows in §4.4.
type RangeBucket string

const (
	Range6h  RangeBucket = "6h"
	Range24h RangeBucket = "24h"
	Range3d  RangeBucket = "3d"
	Range7d  RangeBucket = "7d"
	Range30d RangeBucket = "30d"
)

var bucketDelta = map[RangeBucket]time.Duration{
	Range6h:  6 * time.Hour,
	Range24h: 24 * time.Hour,
	Range3d:  3 * 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range30d: 30 * 24 * time.Hour,
}

// Sample is one breakpoint of a stepwise power curve.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	PowerW    float64   `json:"power_w"`
}

// DeviceReport is one device's contribution to an analysis.
type DeviceReport struct {
	DeviceID    uint      `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	EnergyKWh   float64   `json:"energy_kwh"`
	Series      []Sample  `json:"series"`
	RuntimeHours *float64 `json:"runtime_hours,omitempty"`
}

// Analysis is the top-level report returned by Analyze.
type Analysis struct {
	Start            time.Time      `json:"start"`
	End              time.Time      `json:"end"`
	EnergyKWh        float64        `json:"energy_kwh"`
	CostTotal        float64        `json:"cost_total"`
	PeakPowerW       float64        `json:"peak_power_w"`
	AvgPowerW        float64        `json:"avg_power_w"`
	AggregateSeries  []Sample       `json:"aggregate_series"`
	DeviceBreakdown  []DeviceReport `json:"device_breakdown"`
}

// MonthlyAnalysis adds a projected month-end total to Analysis,
// computed over the elapsed portion of the current month.
type MonthlyAnalysis struct {
	Analysis
	ProjectedEnergyKWh  float64            `json:"projected_energy_kwh"`
	RuntimeHoursByDevice map[uint]float64  `json:"runtime_hours_by_device"`
}

// Engine computes energy reports against the persistence layer.
type Engine struct {
	store   *store.Store
	profile config.PowerProfile
	price   float64
	now     func() time.Time
}

func NewEngine(s *store.Store, profile config.PowerProfile, pricePerKWh float64) *Engine {
	return &Engine{store: s, profile: profile, price: pricePerKWh, now: time.Now}
}

// Analyze computes an Analysis for deviceIDs over bucket.
func (e *Engine) Analyze(deviceIDs []uint, bucket RangeBucket) (*Analysis, error) {
	now := e.now()
	delta, ok := bucketDelta[bucket]
	if !ok {
		delta = 24 * time.Hour
	}
	start := now.Add(-delta)
	report, err := e.analyzeWindow(deviceIDs, start, now)
	if err != nil {
		return nil, err
	}
	// Runtime hours are reported for the monthly window only.
	for i := range report.DeviceBreakdown {
		report.DeviceBreakdown[i].RuntimeHours = nil
	}
	return report, nil
}

// MonthlyEstimate computes a MonthlyAnalysis over [first-of-month, now]
// and projects full-month consumption, per §4.4's monthly projection.
func (e *Engine) MonthlyEstimate(deviceIDs []uint) (*MonthlyAnalysis, error) {
	now := e.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	nextMonth := monthStart.AddDate(0, 1, 0)

	base, err := e.analyzeWindow(deviceIDs, monthStart, now)
	if err != nil {
		return nil, err
	}

	elapsed := now.Sub(monthStart).Seconds()
	monthSeconds := nextMonth.Sub(monthStart).Seconds()
	projected := base.EnergyKWh
	if elapsed > 0 {
		projected = base.EnergyKWh / elapsed * monthSeconds
	}

	runtimeByDevice := make(map[uint]float64)
	for _, d := range base.DeviceBreakdown {
		if d.RuntimeHours != nil {
			runtimeByDevice[d.DeviceID] = *d.RuntimeHours
		}
	}

	return &MonthlyAnalysis{
		Analysis:             *base,
		ProjectedEnergyKWh:   projected,
		RuntimeHoursByDevice: runtimeByDevice,
	}, nil
}

func (e *Engine) analyzeWindow(deviceIDs []uint, start, end time.Time) (*Analysis, error) {
	reports := make([]DeviceReport, 0, len(deviceIDs))
	events := make(map[int64]float64) // unix-nano -> delta power
	initialTotal := 0.0

	for _, id := range deviceIDs {
		dev, err := e.store.GetDevice(id)
		if err != nil {
			return nil, err
		}
		series, energyKWh, runtime, err := e.deviceEnergyInRange(dev, start, end)
		if err != nil {
			return nil, err
		}

		rep := DeviceReport{DeviceID: dev.ID, DeviceName: dev.Name, EnergyKWh: energyKWh, Series: series}
		if model.RuntimeTrackableTypes[dev.Type] {
			hrs := runtime.Hours()
			rep.RuntimeHours = &hrs
		}
		reports = append(reports, rep)

		if len(series) == 0 {
			continue
		}
		initialTotal += series[0].PowerW
		prevP := series[0].PowerW
		for _, s := range series[1:] {
			delta := s.PowerW - prevP
			if delta != 0 {
				events[s.Timestamp.UnixNano()] += delta
			}
			prevP = s.PowerW
		}
	}

	aggregate := aggregateSeries(start, end, initialTotal, events)

	energyKWh := integrateSeries(aggregate)
	peak := 0.0
	for _, s := range aggregate {
		if s.PowerW > peak {
			peak = s.PowerW
		}
	}
	windowHours := end.Sub(start).Hours()
	avg := 0.0
	if windowHours > 0 {
		avg = energyKWh * 1000 / windowHours
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].EnergyKWh > reports[j].EnergyKWh })

	return &Analysis{
		Start: start, End: end,
		EnergyKWh:       energyKWh,
		CostTotal:       energyKWh * e.price,
		PeakPowerW:      peak,
		AvgPowerW:       avg,
		AggregateSeries: aggregate,
		DeviceBreakdown: reports,
	}, nil
}

// aggregateSeries builds the prefix-summed aggregate curve from an
// event map of timestamp -> delta power, per §4.4's aggregation
// algorithm.
func aggregateSeries(start, end time.Time, initialTotal float64, events map[int64]float64) []Sample {
	ts := make([]int64, 0, len(events))
	for t := range events {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })

	out := []Sample{{Timestamp: start, PowerW: initialTotal}}
	running := initialTotal
	for _, t := range ts {
		running += events[t]
		ti := time.Unix(0, t)
		if ti.Before(start) || ti.After(end) {
			continue
		}
		out = append(out, Sample{Timestamp: ti, PowerW: running})
	}
	out = append(out, Sample{Timestamp: end, PowerW: running})
	return out
}

// integrateSeries computes total energy in kWh from a piecewise
// constant power series.
func integrateSeries(series []Sample) float64 {
	total := 0.0
	for i := 1; i < len(series); i++ {
		dt := series[i].Timestamp.Sub(series[i-1].Timestamp)
		total += series[i-1].PowerW * dt.Hours() / 1000
	}
	return total
}

// deviceEnergyInRange ports _device_energy_in_range: baseline
// selection, cursor-based integration over history points in [start,
// end], runtime accumulation for runtime-trackable running devices,
// and sentinel head/tail samples.
func (e *Engine) deviceEnergyInRange(dev *model.Device, start, end time.Time) ([]Sample, float64, time.Duration, error) {
	cursorState := model.State{}
	cursorPower := 0.0

	pre, err := e.store.PreBaseline(dev.ID, start)
	if err != nil {
		return nil, 0, 0, err
	}
	if pre != nil {
		cursorState = cleanOffWithoutPower(model.State{}, pre.Data)
		cursorPower = e.power(dev.Type, cursorState)
	}

	points, err := e.store.DeviceHistory(dev.ID, start, end)
	if err != nil {
		return nil, 0, 0, err
	}

	series := []Sample{{Timestamp: start, PowerW: cursorPower}}
	energyKWh := 0.0
	var runtime time.Duration
	cursorTime := start

	for _, p := range points {
		if !p.Timestamp.After(cursorTime) {
			// t' <= t: merge into cursor state without emitting a sample.
			cursorState = cleanOffWithoutPower(cursorState, p.Data)
			cursorPower = e.power(dev.Type, cursorState)
			continue
		}

		dt := p.Timestamp.Sub(cursorTime)
		energyKWh += cursorPower * dt.Hours() / 1000
		if model.RuntimeTrackableTypes[dev.Type] && isRunning(cursorState, cursorPower) {
			runtime += dt
		}

		cursorState = cleanOffWithoutPower(cursorState, p.Data)
		newPower := e.power(dev.Type, cursorState)
		cursorTime = p.Timestamp
		if newPower != cursorPower {
			series = append(series, Sample{Timestamp: cursorTime, PowerW: newPower})
		}
		cursorPower = newPower
	}

	if end.After(cursorTime) {
		dt := end.Sub(cursorTime)
		energyKWh += cursorPower * dt.Hours() / 1000
		if model.RuntimeTrackableTypes[dev.Type] && isRunning(cursorState, cursorPower) {
			runtime += dt
		}
	}

	series = append(series, Sample{Timestamp: end, PowerW: cursorPower})
	return series, energyKWh, runtime, nil
}

// isRunning implements §4.4's "running" definition for runtime
// accounting: the on key if present, else power > 0.
func isRunning(state model.State, power float64) bool {
	if v, ok := state["on"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return power > 0
}

// cleanOffWithoutPower merges patch into s and, when patch sets on=false
// without an explicit power_w/power field of its own, strips any
// power_w/power inherited from s, so measured power is not carried
// across an off event.
func cleanOffWithoutPower(s, patch model.State) model.State {
	out := s.Merge(patch)
	on, hasOn := patch["on"].(bool)
	_, hasPowerW := patch["power_w"]
	_, hasPower := patch["power"]
	if hasOn && !on && !hasPowerW && !hasPower {
		delete(out, "power_w")
		delete(out, "power")
	}
	return out
}

// power implements §4.4's power(s) dispatch.
func (e *Engine) power(t model.DeviceType, s model.State) float64 {
	if v, ok := s.Float("power_w"); ok {
		return maxf(0, v)
	}
	if v, ok := s.Float("power"); ok {
		return maxf(0, v)
	}

	switch t {
	case model.DeviceLampSwitch:
		if s.Bool("on", false) {
			return e.profile.LampOnW
		}
		return 0
	case model.DeviceFanSwitch:
		if !s.Bool("on", false) {
			return 0
		}
		speed, _ := s.Float("speed")
		switch int(speed) {
		case 1:
			return e.profile.FanSpeed1W
		case 2:
			return e.profile.FanSpeed2W
		default:
			return e.profile.FanSpeed3W
		}
	case model.DeviceACSwitch:
		if !s.Bool("on", false) {
			return 0
		}
		temp, ok := s.Float("temp")
		if !ok {
			temp = 26
		}
		w := e.profile.ACBaseW + (26-temp)*e.profile.ACTempStepW
		return clamp(w, e.profile.ACMinW, e.profile.ACMaxW)
	case model.DeviceTempHumi, model.DevicePressure, model.DevicePIR, model.DeviceSmoke, model.DeviceLight:
		if len(s) > 0 {
			return e.profile.SensorIdleW
		}
		return 0
	default:
		return 0
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
