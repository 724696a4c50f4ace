package replay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
)

func seedScenario(t *testing.T, st store.Store, tenant string, kind domain.ScenarioKind, payload map[string]any) domain.Scenario {
	t.Helper()
	hash, err := canonhash.SumHex(payload)
	if err != nil {
		t.Fatalf("hashing payload: %v", err)
	}
	sc := domain.Scenario{
		ScenarioID:  "scn_test",
		TenantID:    tenant,
		Kind:        kind,
		Name:        "test scenario",
		Payload:     payload,
		PayloadHash: hash,
		CreatedBy:   "tester",
		CreatedAt:   time.Now().UTC(),
	}
	stored, _, err := st.PutScenario(context.Background(), sc)
	if err != nil {
		t.Fatalf("seeding scenario: %v", err)
	}
	return stored
}

func TestRunThenReplayMatches(t *testing.T) {
	st := store.NewMemory()
	e := New(st)
	ctx := context.Background()
	sc := seedScenario(t, st, "acme", domain.ScenarioStress, map[string]any{"shock_pct": 0.20})

	first, err := e.Run(ctx, "acme", sc.ScenarioID, "", "analyst")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if first.Replay {
		t.Fatalf("initial run must not be marked replay")
	}

	second, err := e.Replay(ctx, "acme", sc.ScenarioID, "", "analyst")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replay {
		t.Fatalf("replay run must be marked replay")
	}
	if second.OutputsHash != first.OutputsHash {
		t.Fatalf("replay output hash %s != original %s", second.OutputsHash, first.OutputsHash)
	}
	if second.RunID == first.RunID {
		t.Fatalf("replay must append a new run")
	}

	runs, _ := st.ListRuns(ctx, "acme", sc.ScenarioID)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestReplayDetectsDrift(t *testing.T) {
	st := store.NewMemory()
	e := New(st)
	ctx := context.Background()
	sc := seedScenario(t, st, "acme", domain.ScenarioStress, map[string]any{"shock_pct": 0.10})

	if _, err := e.Run(ctx, "acme", sc.ScenarioID, "", "analyst"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Simulate a buggy computation that leaks state into its output.
	calls := 0
	e.Register(domain.ScenarioStress, func(payload map[string]any) (map[string]any, error) {
		calls++
		return map[string]any{"result": fmt.Sprint(calls)}, nil
	})

	_, err := e.Replay(ctx, "acme", sc.ScenarioID, "", "analyst")
	var det *domain.DeterminismError
	if !errors.As(err, &det) {
		t.Fatalf("expected DeterminismError, got %v", err)
	}
	if det.ScenarioID != sc.ScenarioID {
		t.Fatalf("violation must name the scenario, got %s", det.ScenarioID)
	}
	if det.ExpectedHash == det.ActualHash {
		t.Fatalf("violation must carry the diverging hashes")
	}

	// The failed replay must not have appended a run.
	runs, _ := st.ListRuns(ctx, "acme", sc.ScenarioID)
	if len(runs) != 1 {
		t.Fatalf("failed replay must not persist, got %d runs", len(runs))
	}
}

func TestReplayWithoutPriorRun(t *testing.T) {
	st := store.NewMemory()
	e := New(st)
	sc := seedScenario(t, st, "acme", domain.ScenarioStress, map[string]any{"shock_pct": 0.10})

	_, err := e.Replay(context.Background(), "acme", sc.ScenarioID, "", "analyst")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a baseline run, got %v", err)
	}
}

func TestRunUnknownScenario(t *testing.T) {
	e := New(store.NewMemory())
	_, err := e.Run(context.Background(), "acme", "scn_missing", "", "analyst")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunAgainstDataset(t *testing.T) {
	st := store.NewMemory()
	e := New(st)
	ctx := context.Background()
	sc := seedScenario(t, st, "acme", domain.ScenarioStress, map[string]any{"shock_pct": 0.15})

	payload := map[string]any{"positions": []any{map[string]any{"ticker": "AAPL", "quantity": 100.0}}}
	sha, err := canonhash.SumHex(payload)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	d, _, err := st.PutDataset(ctx, domain.Dataset{
		DatasetID: "ds_1", TenantID: "acme", Kind: domain.DatasetPortfolio,
		Name: "book", Payload: payload, SHA256: sha, RowCount: 1, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed dataset: %v", err)
	}

	bare, err := e.Run(ctx, "acme", sc.ScenarioID, "", "analyst")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	withDS, err := e.Run(ctx, "acme", sc.ScenarioID, d.DatasetID, "analyst")
	if err != nil {
		t.Fatalf("run with dataset: %v", err)
	}
	if withDS.DatasetID != d.DatasetID {
		t.Fatalf("run must record the dataset, got %q", withDS.DatasetID)
	}
	if withDS.InputsHash == bare.InputsHash {
		t.Fatalf("dataset content must be part of the inputs hash")
	}
	if withDS.OutputsHash != bare.OutputsHash {
		t.Fatalf("same scenario payload must still produce the same outputs")
	}

	_, err = e.Run(ctx, "acme", sc.ScenarioID, "ds_missing", "analyst")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown dataset, got %v", err)
	}

	// Another tenant's scenario may not borrow acme's dataset.
	other, _, err := st.PutScenario(ctx, domain.Scenario{
		ScenarioID: "scn_other", TenantID: "globex", Kind: domain.ScenarioStress,
		Name: "other", Payload: map[string]any{"shock_pct": 0.15},
		PayloadHash: sc.PayloadHash, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed scenario: %v", err)
	}
	_, err = e.Run(ctx, "globex", other.ScenarioID, d.DatasetID, "analyst")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cross-tenant dataset, got %v", err)
	}
}

func TestAllKindsAreDeterministic(t *testing.T) {
	cases := []struct {
		kind    domain.ScenarioKind
		payload map[string]any
	}{
		{domain.ScenarioStress, map[string]any{"shock_pct": 0.25}},
		{domain.ScenarioWhatIf, map[string]any{"overrides": map[string]any{"rates": 0.01, "fx": -0.02}}},
		{domain.ScenarioShockLadder, map[string]any{"steps": 5, "step_pct": 0.05}},
	}
	for _, tc := range cases {
		st := store.NewMemory()
		e := New(st)
		sc := seedScenario(t, st, "acme", tc.kind, tc.payload)

		first, err := e.Run(context.Background(), "acme", sc.ScenarioID, "", "analyst")
		if err != nil {
			t.Fatalf("%s run: %v", tc.kind, err)
		}
		for i := 0; i < 3; i++ {
			again, err := e.Replay(context.Background(), "acme", sc.ScenarioID, "", "analyst")
			if err != nil {
				t.Fatalf("%s replay %d: %v", tc.kind, i, err)
			}
			if again.OutputsHash != first.OutputsHash {
				t.Fatalf("%s replay %d diverged", tc.kind, i)
			}
		}
	}
}
