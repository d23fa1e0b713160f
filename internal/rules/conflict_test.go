package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/homehub/core/internal/model"
)

func TestCheckConflictDetectsOverlap(t *testing.T) {
	above30 := scalar(30)
	r1 := model.SceneRule{ID: 1, Name: "r1", TriggerDeviceID: 5, TriggerType: model.TriggerThresholdAbove,
		TriggerField: "temp", TriggerValue: above30, ActionDeviceID: 9, ActionType: model.ActionTurnOn}

	above32 := scalar(32)
	r2 := model.SceneRule{ID: 2, Name: "r2", TriggerDeviceID: 5, TriggerType: model.TriggerThresholdAbove,
		TriggerField: "temp", TriggerValue: above32, ActionDeviceID: 9, ActionType: model.ActionTurnOff}

	conflicts := CheckConflict(&r2, []model.SceneRule{r1})
	assert.Len(t, conflicts, 1)
	assert.Equal(t, uint(1), conflicts[0].RuleID)
	assert.Equal(t, "action_type", conflicts[0].ConflictField)
}

func TestCheckConflictNoOverlapDifferentDevice(t *testing.T) {
	v := scalar(30)
	r1 := model.SceneRule{ID: 1, Name: "r1", TriggerDeviceID: 5, TriggerType: model.TriggerThresholdAbove,
		TriggerField: "temp", TriggerValue: v, ActionDeviceID: 9, ActionType: model.ActionTurnOn}
	r2 := model.SceneRule{ID: 2, Name: "r2", TriggerDeviceID: 6, TriggerType: model.TriggerThresholdAbove,
		TriggerField: "temp", TriggerValue: v, ActionDeviceID: 9, ActionType: model.ActionTurnOn}

	conflicts := CheckConflict(&r2, []model.SceneRule{r1})
	assert.Empty(t, conflicts)
}

func TestCheckConflictRenameDoesNotConflictWithItself(t *testing.T) {
	v := scalar(30)
	r1 := model.SceneRule{ID: 1, Name: "renamed", TriggerDeviceID: 5, TriggerType: model.TriggerThresholdAbove,
		TriggerField: "temp", TriggerValue: v, ActionDeviceID: 9, ActionType: model.ActionTurnOn}

	conflicts := CheckConflict(&r1, []model.SceneRule{r1})
	assert.Empty(t, conflicts)
}

func rangeVal(min, max float64) model.TriggerValue {
	return model.TriggerValue{Min: &min, Max: &max}
}

func TestCheckConflictDetectsRangeOutUpperTailOverlap(t *testing.T) {
	// r1 fires outside [10, 20], i.e. on (-inf, 10) ∪ (20, inf).
	r1 := model.SceneRule{ID: 1, Name: "r1", TriggerDeviceID: 5, TriggerType: model.TriggerRangeOut,
		TriggerField: "temp", TriggerValue: rangeVal(10, 20), ActionDeviceID: 9, ActionType: model.ActionTurnOn}

	// r2 fires above 25, which only overlaps r1's upper tail (20, inf),
	// never its lower tail.
	above25 := scalar(25)
	r2 := model.SceneRule{ID: 2, Name: "r2", TriggerDeviceID: 5, TriggerType: model.TriggerThresholdAbove,
		TriggerField: "temp", TriggerValue: above25, ActionDeviceID: 9, ActionType: model.ActionTurnOff}

	conflicts := CheckConflict(&r2, []model.SceneRule{r1})
	assert.Len(t, conflicts, 1)
	assert.Equal(t, uint(1), conflicts[0].RuleID)
}

func TestCheckConflictRangeOutNoOverlapDifferentField(t *testing.T) {
	r1 := model.SceneRule{ID: 1, Name: "r1", TriggerDeviceID: 5, TriggerType: model.TriggerRangeOut,
		TriggerField: "temp", TriggerValue: rangeVal(10, 20), ActionDeviceID: 9, ActionType: model.ActionTurnOn}
	r2 := model.SceneRule{ID: 2, Name: "r2", TriggerDeviceID: 5, TriggerType: model.TriggerRangeOut,
		TriggerField: "humidity", TriggerValue: rangeVal(10, 20), ActionDeviceID: 9, ActionType: model.ActionTurnOff}

	conflicts := CheckConflict(&r2, []model.SceneRule{r1})
	assert.Empty(t, conflicts)
}

func TestActionsConflictBothToggle(t *testing.T) {
	a := signatureOf(model.ActionToggle, model.TriggerValue{})
	b := signatureOf(model.ActionToggle, model.TriggerValue{})
	assert.True(t, actionsConflict(a, b))
}

func TestActionsConflictDifferentTemp(t *testing.T) {
	t1, t2 := scalar(24), scalar(26)
	a := signatureOf(model.ActionSetTemp, t1)
	b := signatureOf(model.ActionSetTemp, t2)
	assert.True(t, actionsConflict(a, b))
}

func TestActionsConflictSameTempIsDuplicate(t *testing.T) {
	t1, t2 := scalar(24), scalar(24)
	a := signatureOf(model.ActionSetTemp, t1)
	b := signatureOf(model.ActionSetTemp, t2)
	// identical signatures are flagged as a duplicate-rule conflict
	assert.True(t, actionsConflict(a, b))
}
