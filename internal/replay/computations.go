package replay

import (
	"fmt"
	"sort"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
)

// ComputationVersion tags every result so an output hash is a pure function of
// (inputs hash, version). Bump it whenever a computation's arithmetic changes.
const ComputationVersion = "calc-v1"

// referenceBookValue anchors the built-in computations. The real pricing and
// risk models live outside the core and are consumed only through their result
// contracts; these built-ins stand in for them with the same determinism
// obligations.
const referenceBookValue = 1_000_000.0

func computeStress(payload map[string]any) (map[string]any, error) {
	shock, err := numField(payload, "shock_pct")
	if err != nil {
		return nil, err
	}
	stressed := referenceBookValue * (1 - shock)
	return map[string]any{
		"computation_version": ComputationVersion,
		"kind":                string(domain.ScenarioStress),
		"shock_pct":           shock,
		"base_value":          referenceBookValue,
		"stressed_value":      stressed,
		"pv_impact":           stressed - referenceBookValue,
	}, nil
}

func computeWhatIf(payload map[string]any) (map[string]any, error) {
	raw, ok := payload["overrides"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: overrides must be an object", domain.ErrValidation)
	}
	// Sorted iteration: float accumulation order must not depend on map order.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	adjusted := referenceBookValue
	applied := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		v, err := numField(raw, k)
		if err != nil {
			return nil, err
		}
		adjusted = adjusted * (1 + v)
		applied = append(applied, map[string]any{"factor": k, "shift": v})
	}
	return map[string]any{
		"computation_version": ComputationVersion,
		"kind":                string(domain.ScenarioWhatIf),
		"applied":             applied,
		"base_value":          referenceBookValue,
		"adjusted_value":      adjusted,
		"pv_impact":           adjusted - referenceBookValue,
	}, nil
}

func computeShockLadder(payload map[string]any) (map[string]any, error) {
	stepsF, err := numField(payload, "steps")
	if err != nil {
		return nil, err
	}
	stepPct, err := numField(payload, "step_pct")
	if err != nil {
		return nil, err
	}
	steps := int(stepsF)
	rungs := make([]map[string]any, 0, steps)
	for i := 1; i <= steps; i++ {
		shock := stepPct * float64(i)
		stressed := referenceBookValue * (1 - shock)
		rungs = append(rungs, map[string]any{
			"step":           i,
			"shock_pct":      shock,
			"stressed_value": stressed,
			"pv_impact":      stressed - referenceBookValue,
		})
	}
	return map[string]any{
		"computation_version": ComputationVersion,
		"kind":                string(domain.ScenarioShockLadder),
		"base_value":          referenceBookValue,
		"rungs":               rungs,
	}, nil
}

func numField(m map[string]any, key string) (float64, error) {
	switch v := m[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, key)
	}
}
