package review

import (
	"context"
	"errors"
	"testing"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/chain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
)

func newService() (*Service, store.Store) {
	st := store.NewMemory()
	return New(st, chain.New(st)), st
}

func TestHappyPathApprove(t *testing.T) {
	s, st := newService()
	ctx := context.Background()

	r, err := s.Create(ctx, "acme", "dataset", "ds-001", "maker@example.com", "quarterly book")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Status != domain.ReviewDraft {
		t.Fatalf("new review must be DRAFT, got %s", r.Status)
	}

	r, err = s.Submit(ctx, "acme", r.ReviewID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Status != domain.ReviewInReview {
		t.Fatalf("submitted review must be IN_REVIEW, got %s", r.Status)
	}

	r, err = s.Decide(ctx, "acme", r.ReviewID, domain.ReviewApproved, "checker@example.com")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if r.Status != domain.ReviewApproved {
		t.Fatalf("expected APPROVED, got %s", r.Status)
	}
	if r.DecisionHash == "" || len(r.DecisionHash) != 64 {
		t.Fatalf("terminal decision must set a 64-char decision hash, got %q", r.DecisionHash)
	}
	if r.AttestationID == "" {
		t.Fatalf("terminal decision must anchor an attestation")
	}

	// The attestation id must resolve to a chain entry and the chain must
	// verify.
	att, err := st.GetAttestation(ctx, "acme", r.AttestationID)
	if err != nil {
		t.Fatalf("attestation lookup: %v", err)
	}
	if att.PayloadRef["decision_hash"] != r.DecisionHash {
		t.Fatalf("attestation must carry the decision hash")
	}
	seq, _ := st.ListAttestations(ctx, "acme")
	ok, badID, err := chain.Verify(seq)
	if err != nil || !ok {
		t.Fatalf("chain must verify after decision: ok=%v bad=%s err=%v", ok, badID, err)
	}
}

func TestDecideFromDraftIsIllegal(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	r, _ := s.Create(ctx, "acme", "dataset", "ds-001", "maker", "")
	_, err := s.Decide(ctx, "acme", r.ReviewID, domain.ReviewApproved, "checker")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSubmitFromTerminalIsIllegalAndUnchanged(t *testing.T) {
	s, st := newService()
	ctx := context.Background()

	r, _ := s.Create(ctx, "acme", "dataset", "ds-001", "maker", "")
	r, _ = s.Submit(ctx, "acme", r.ReviewID)
	r, err := s.Decide(ctx, "acme", r.ReviewID, domain.ReviewRejected, "checker")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}

	_, err = s.Submit(ctx, "acme", r.ReviewID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	_, err = s.Decide(ctx, "acme", r.ReviewID, domain.ReviewApproved, "checker")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from terminal state, got %v", err)
	}

	after, _ := st.GetReview(ctx, "acme", r.ReviewID)
	if after.Status != domain.ReviewRejected || after.DecisionHash != r.DecisionHash {
		t.Fatalf("illegal transition must leave the review unchanged")
	}
}

func TestDecideRejectsUnknownDecision(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	r, _ := s.Create(ctx, "acme", "dataset", "ds-001", "maker", "")
	r, _ = s.Submit(ctx, "acme", r.ReviewID)
	_, err := s.Decide(ctx, "acme", r.ReviewID, domain.ReviewDraft, "checker")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// failingStore breaks UpdateReview after a set number of successful calls.
type failingStore struct {
	store.Store
	updatesLeft int
}

func (f *failingStore) UpdateReview(ctx context.Context, r domain.Review) error {
	if f.updatesLeft <= 0 {
		return errors.New("storage unavailable")
	}
	f.updatesLeft--
	return f.Store.UpdateReview(ctx, r)
}

func TestFailedDecideUpdateRevertsOnChain(t *testing.T) {
	st := &failingStore{Store: store.NewMemory(), updatesLeft: 1} // submit succeeds, decide's update fails
	s := New(st, chain.New(st))
	ctx := context.Background()

	r, _ := s.Create(ctx, "acme", "dataset", "ds_1", "maker", "")
	r, err := s.Submit(ctx, "acme", r.ReviewID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = s.Decide(ctx, "acme", r.ReviewID, domain.ReviewApproved, "checker")
	if err == nil {
		t.Fatalf("expected the storage failure to surface")
	}

	// The review must not be terminal.
	after, getErr := st.GetReview(ctx, "acme", r.ReviewID)
	if getErr != nil {
		t.Fatalf("get review: %v", getErr)
	}
	if after.Status != domain.ReviewInReview || after.DecisionHash != "" || after.AttestationID != "" {
		t.Fatalf("failed decide must leave the review undecided, got %+v", after)
	}

	// The chain carries the decided link plus its reversal and still verifies.
	seq, _ := st.ListAttestations(ctx, "acme")
	if len(seq) != 2 {
		t.Fatalf("expected decided + reverted links, got %d", len(seq))
	}
	if seq[1].PayloadRef["event"] != "review_decision_reverted" {
		t.Fatalf("second link must revert the decision, got %v", seq[1].PayloadRef)
	}
	if seq[1].PayloadRef["reverts"] != seq[0].AttestationID {
		t.Fatalf("reversal must name the decided link")
	}
	ok, badID, err := chain.Verify(seq)
	if err != nil || !ok {
		t.Fatalf("chain must still verify: ok=%v bad=%s err=%v", ok, badID, err)
	}
}

func TestDecisionHashIsDeterministic(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	decide := func() string {
		r, _ := s.Create(ctx, "acme", "dataset", "ds-001", "maker", "")
		r, _ = s.Submit(ctx, "acme", r.ReviewID)
		r, err := s.Decide(ctx, "acme", r.ReviewID, domain.ReviewApproved, "checker@example.com")
		if err != nil {
			t.Fatalf("decide: %v", err)
		}
		return r.DecisionHash
	}

	first := decide()
	second := decide()
	if first != second {
		t.Fatalf("identical decision facts must hash identically: %s vs %s", first, second)
	}

	h, err := DecisionHash("dataset", "ds-001", domain.ReviewApproved, "someone-else")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h == first {
		t.Fatalf("different decider must change the decision hash")
	}
}
