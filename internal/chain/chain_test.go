package chain

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
)

func TestAppendAndVerify(t *testing.T) {
	st := store.NewMemory()
	s := New(st)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, "acme", map[string]any{"event": "test", "n": i})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	ok, badID, err := s.VerifyChain(ctx, "acme")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok || badID != "" {
		t.Fatalf("expected valid chain, got ok=%v bad=%s", ok, badID)
	}
}

func TestFirstLinkUsesGenesis(t *testing.T) {
	st := store.NewMemory()
	s := New(st)

	a, err := s.Append(context.Background(), "acme", map[string]any{"event": "first"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if a.PrevHash != GenesisHash {
		t.Fatalf("first link prev_hash must be genesis, got %s", a.PrevHash)
	}
	if a.Seq != 1 {
		t.Fatalf("first link seq must be 1, got %d", a.Seq)
	}
}

func TestTamperedPayloadFailsFromThatPoint(t *testing.T) {
	st := store.NewMemory()
	s := New(st)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.Append(ctx, "acme", map[string]any{"n": i}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	seq, _ := st.ListAttestations(ctx, "acme")
	seq[2].PayloadRef["n"] = 999

	ok, badID, err := Verify(seq)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("tampered chain must not verify")
	}
	if badID != seq[2].AttestationID {
		t.Fatalf("expected offending id %s, got %s", seq[2].AttestationID, badID)
	}
}

func TestTenantsChainIndependently(t *testing.T) {
	st := store.NewMemory()
	s := New(st)
	ctx := context.Background()

	a1, _ := s.Append(ctx, "acme", map[string]any{"n": 1})
	b1, _ := s.Append(ctx, "globex", map[string]any{"n": 1})
	if a1.PrevHash != GenesisHash || b1.PrevHash != GenesisHash {
		t.Fatalf("each tenant starts its own chain at genesis")
	}

	for _, tenant := range []string{"acme", "globex"} {
		ok, _, err := s.VerifyChain(ctx, tenant)
		if err != nil || !ok {
			t.Fatalf("tenant %s chain invalid: ok=%v err=%v", tenant, ok, err)
		}
	}
}

func TestConcurrentAppendsStayLinear(t *testing.T) {
	st := store.NewMemory()
	s := New(st)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := s.Append(ctx, "acme", map[string]any{"n": fmt.Sprint(n)}); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ok, badID, err := s.VerifyChain(ctx, "acme")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok {
		t.Fatalf("chain corrupted under concurrent appends at %s", badID)
	}
	seq, _ := st.ListAttestations(ctx, "acme")
	if len(seq) != 20 {
		t.Fatalf("expected 20 links, got %d", len(seq))
	}
}
