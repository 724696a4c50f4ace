// Package replay executes registered scenario computations and re-executes
// them on demand to prove byte-for-byte reproducibility. A replay whose output
// hash differs from the recorded baseline is a computation defect and is
// surfaced as *domain.DeterminismError, never as an ordinary failure.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/keylock"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/metrics"
)

// Computation is a pure function from scenario payload to result. It must not
// read clocks, random sources, or any state outside its argument.
type Computation func(payload map[string]any) (map[string]any, error)

var ErrUnknownKind = errors.New("no computation registered for scenario kind")

type Engine struct {
	st    store.Store
	locks *keylock.KeyedMutex
	comps map[domain.ScenarioKind]Computation
	now   func() time.Time
}

func New(st store.Store) *Engine {
	e := &Engine{
		st:    st,
		locks: keylock.New(),
		comps: map[domain.ScenarioKind]Computation{},
		now:   time.Now,
	}
	e.Register(domain.ScenarioStress, computeStress)
	e.Register(domain.ScenarioWhatIf, computeWhatIf)
	e.Register(domain.ScenarioShockLadder, computeShockLadder)
	return e
}

func (e *Engine) Register(kind domain.ScenarioKind, c Computation) { e.comps[kind] = c }

// Run executes the scenario's computation and appends a fresh Run. datasetID
// optionally names the dataset the run is evaluated against; the run records
// the linkage and the dataset's content hash becomes part of the inputs hash.
func (e *Engine) Run(ctx context.Context, tenantID, scenarioID, datasetID, triggeredBy string) (domain.Run, error) {
	return e.execute(ctx, tenantID, scenarioID, datasetID, triggeredBy, false)
}

// Replay re-executes the computation and asserts output-hash equality against
// the latest prior run of the scenario. The baseline read and the new append
// happen under the same per-tenant/per-scenario lock, so concurrent replays
// observe a stable baseline.
func (e *Engine) Replay(ctx context.Context, tenantID, scenarioID, datasetID, triggeredBy string) (domain.Run, error) {
	return e.execute(ctx, tenantID, scenarioID, datasetID, triggeredBy, true)
}

func (e *Engine) execute(ctx context.Context, tenantID, scenarioID, datasetID, triggeredBy string, isReplay bool) (domain.Run, error) {
	sc, err := e.st.GetScenario(ctx, tenantID, scenarioID)
	if err != nil {
		return domain.Run{}, err
	}
	comp, ok := e.comps[sc.Kind]
	if !ok {
		return domain.Run{}, fmt.Errorf("%w: %s", ErrUnknownKind, sc.Kind)
	}

	inputs := map[string]any{"scenario_payload": sc.Payload}
	if datasetID != "" {
		d, err := e.st.GetDataset(ctx, tenantID, datasetID)
		if err != nil {
			return domain.Run{}, err
		}
		inputs["dataset_sha256"] = d.SHA256
	}
	inputsHash, err := canonhash.SumHex(inputs)
	if err != nil {
		return domain.Run{}, err
	}
	result, err := comp(sc.Payload)
	if err != nil {
		return domain.Run{}, err
	}
	outputsHash, err := canonhash.SumHex(result)
	if err != nil {
		return domain.Run{}, err
	}

	unlock := e.locks.Lock(tenantID + "\x00" + scenarioID)
	defer unlock()

	if isReplay {
		baseline, err := e.st.LatestRun(ctx, tenantID, scenarioID)
		if err != nil {
			return domain.Run{}, err
		}
		if baseline.OutputsHash != outputsHash {
			metrics.DeterminismViolationsTotal.Inc()
			return domain.Run{}, &domain.DeterminismError{
				ScenarioID:   scenarioID,
				BaselineRun:  baseline.RunID,
				ExpectedHash: baseline.OutputsHash,
				ActualHash:   outputsHash,
			}
		}
	}

	r := domain.Run{
		RunID:       "run_" + uuid.NewString(),
		TenantID:    tenantID,
		ScenarioID:  scenarioID,
		DatasetID:   datasetID,
		InputsHash:  inputsHash,
		OutputsHash: outputsHash,
		TriggeredBy: triggeredBy,
		Replay:      isReplay,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.st.AppendRun(ctx, r); err != nil {
		return domain.Run{}, err
	}
	return r, nil
}
