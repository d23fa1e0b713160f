package rules

import (
	"fmt"

	"github.com/homehub/core/internal/model"
)

// Conflict describes one detected clash between a candidate rule and
// an existing rule, per §4.3.
type Conflict struct {
	RuleID       uint   `json:"rule_id"`
	RuleName     string `json:"rule_name"`
	ConflictField string `json:"conflict_field"`
	Message      string `json:"message"`
}

// actionSignature is the canonical fingerprint of a rule's action used
// for conflict comparison (GLOSSARY: "Action signature").
type actionSignature struct {
	Toggle    bool
	DesiredOn *bool
	Temp      *float64
	Speed     *int
}

func signatureOf(kind model.ActionKind, value model.TriggerValue) actionSignature {
	switch kind {
	case model.ActionToggle:
		return actionSignature{Toggle: true}
	case model.ActionTurnOn:
		on := true
		return actionSignature{DesiredOn: &on}
	case model.ActionTurnOff:
		on := false
		return actionSignature{DesiredOn: &on}
	case model.ActionSetTemp:
		return actionSignature{Temp: value.Scalar}
	case model.ActionSetFanSpeed:
		var speed *int
		if value.Scalar != nil {
			v := int(*value.Scalar)
			speed = &v
		}
		return actionSignature{Speed: speed}
	}
	return actionSignature{}
}

// actionsConflict implements §4.3 point 4's conflict predicate between
// two action signatures.
func actionsConflict(a, b actionSignature) bool {
	if a.Toggle && b.Toggle {
		return true
	}
	if a.Toggle != b.Toggle {
		return true
	}
	if a.DesiredOn != nil && b.DesiredOn != nil && *a.DesiredOn != *b.DesiredOn {
		return true
	}
	// one closes (TURN_OFF) while the other sets a parameter (temp/speed)
	if a.DesiredOn != nil && !*a.DesiredOn && (b.Temp != nil || b.Speed != nil) {
		return true
	}
	if b.DesiredOn != nil && !*b.DesiredOn && (a.Temp != nil || a.Speed != nil) {
		return true
	}
	if a.Temp != nil && b.Temp != nil && *a.Temp != *b.Temp {
		return true
	}
	if a.Speed != nil && b.Speed != nil && *a.Speed != *b.Speed {
		return true
	}
	// identical signatures (duplicate rule)
	return sameSignature(a, b)
}

func sameSignature(a, b actionSignature) bool {
	if a.Toggle != b.Toggle {
		return false
	}
	if (a.DesiredOn == nil) != (b.DesiredOn == nil) {
		return false
	}
	if a.DesiredOn != nil && *a.DesiredOn != *b.DesiredOn {
		return false
	}
	if (a.Temp == nil) != (b.Temp == nil) {
		return false
	}
	if a.Temp != nil && *a.Temp != *b.Temp {
		return false
	}
	if (a.Speed == nil) != (b.Speed == nil) {
		return false
	}
	if a.Speed != nil && *a.Speed != *b.Speed {
		return false
	}
	return true
}

// triggersOverlap implements §4.3 point 2. Numeric triggers overlap
// when the open intervals they define on trigger_field intersect;
// TIME_STATE rules only overlap other TIME_STATE rules, and only when
// their time windows intersect and their state predicates don't
// contradict.
func triggersOverlap(a, b *model.SceneRule) bool {
	if a.TriggerField != b.TriggerField && a.TriggerType != model.TriggerTimeState {
		return false
	}

	aIsTime := a.TriggerType == model.TriggerTimeState
	bIsTime := b.TriggerType == model.TriggerTimeState
	if aIsTime != bIsTime {
		return false
	}
	if aIsTime && bIsTime {
		if !windowsIntersect(a.TriggerTimeStart, a.TriggerTimeEnd, b.TriggerTimeStart, b.TriggerTimeEnd) {
			return false
		}
		return statesCompatible(a.TriggerStateValue, b.TriggerStateValue)
	}

	ia, okA := intervalsOf(a)
	ib, okB := intervalsOf(b)
	if !okA || !okB {
		return false
	}
	for _, x := range ia {
		for _, y := range ib {
			if x.lo < y.hi && y.lo < x.hi {
				return true
			}
		}
	}
	return false
}

type interval struct{ lo, hi float64 }

// intervalsOf returns the set of open intervals on trigger_field where
// r fires. RANGE_OUT fires on the two-tailed region
// (-inf, min) ∪ (max, inf), so it yields two intervals; every other
// numeric trigger yields exactly one.
func intervalsOf(r *model.SceneRule) ([]interval, bool) {
	switch r.TriggerType {
	case model.TriggerThresholdAbove:
		if r.TriggerValue.Scalar == nil {
			return nil, false
		}
		return []interval{{lo: *r.TriggerValue.Scalar, hi: posInf}}, true
	case model.TriggerThresholdBelow:
		if r.TriggerValue.Scalar == nil {
			return nil, false
		}
		return []interval{{lo: negInf, hi: *r.TriggerValue.Scalar}}, true
	case model.TriggerRangeOut:
		if r.TriggerValue.Min == nil || r.TriggerValue.Max == nil {
			return nil, false
		}
		return []interval{
			{lo: negInf, hi: *r.TriggerValue.Min},
			{lo: *r.TriggerValue.Max, hi: posInf},
		}, true
	}
	return nil, false
}

const (
	posInf = 1e308
	negInf = -1e308
)

func windowsIntersect(aStart, aEnd, bStart, bEnd *string) bool {
	if aStart == nil || aEnd == nil || bStart == nil || bEnd == nil {
		return true
	}
	am, aerr := toMinutes(*aStart)
	ae, aerr2 := toMinutes(*aEnd)
	bm, berr := toMinutes(*bStart)
	be, berr2 := toMinutes(*bEnd)
	if aerr != nil || aerr2 != nil || berr != nil || berr2 != nil {
		return true
	}
	aRanges := rangesFor(am, ae)
	bRanges := rangesFor(bm, be)
	for _, ra := range aRanges {
		for _, rb := range bRanges {
			if ra.lo < rb.hi && rb.lo < ra.hi {
				return true
			}
		}
	}
	return false
}

func rangesFor(start, end int) []interval {
	if start <= end {
		return []interval{{lo: float64(start), hi: float64(end) + 1}}
	}
	return []interval{{lo: float64(start), hi: 1440}, {lo: 0, hi: float64(end) + 1}}
}

func toMinutes(hhmm string) (int, error) {
	var h, m int
	_, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m)
	return h*60 + m, err
}

func statesCompatible(a, b model.State) bool {
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			continue
		}
		if fmt.Sprint(va) != fmt.Sprint(vb) {
			return false
		}
	}
	return true
}

// CheckConflict evaluates candidate against others (all existing rules
// that share candidate's trigger device, excluding candidate itself)
// and returns every conflict found, per §4.3.
func CheckConflict(candidate *model.SceneRule, others []model.SceneRule) []Conflict {
	var out []Conflict
	for i := range others {
		other := &others[i]
		if other.ID == candidate.ID {
			continue
		}
		if other.TriggerDeviceID != candidate.TriggerDeviceID {
			continue
		}
		if !triggersOverlap(candidate, other) {
			continue
		}
		if other.ActionDeviceID != candidate.ActionDeviceID {
			continue
		}
		sigA := signatureOf(candidate.ActionType, candidate.ActionValue)
		sigB := signatureOf(other.ActionType, other.ActionValue)
		if !actionsConflict(sigA, sigB) {
			continue
		}
		out = append(out, Conflict{
			RuleID:        other.ID,
			RuleName:      other.Name,
			ConflictField: "action_type",
			Message:       fmt.Sprintf("conflicts with rule %q: overlapping trigger on device %d with clashing action", other.Name, other.TriggerDeviceID),
		})
	}
	return out
}
