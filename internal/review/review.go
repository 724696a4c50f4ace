// Package review implements the decision lifecycle:
//
//	DRAFT -> IN_REVIEW -> {APPROVED, REJECTED}
//
// Transitions only move forward. A terminal decision computes a deterministic
// decision hash and appends an attestation to the tenant chain; the review
// then carries the attestation id as its provenance anchor.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/chain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
)

type Service struct {
	st    store.Store
	chain *chain.Service
	now   func() time.Time
}

func New(st store.Store, ch *chain.Service) *Service {
	return &Service{st: st, chain: ch, now: time.Now}
}

func (s *Service) Create(ctx context.Context, tenantID, subjectType, subjectID, requestedBy, notes string) (domain.Review, error) {
	if subjectType == "" || subjectID == "" {
		return domain.Review{}, fmt.Errorf("%w: subject_type and subject_id are required", domain.ErrValidation)
	}
	now := s.now().UTC()
	r := domain.Review{
		ReviewID:    "rev_" + uuid.NewString(),
		TenantID:    tenantID,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Status:      domain.ReviewDraft,
		RequestedBy: requestedBy,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.st.CreateReview(ctx, r); err != nil {
		return domain.Review{}, err
	}
	return r, nil
}

// Submit moves DRAFT to IN_REVIEW. Any other starting state is illegal and
// leaves the review untouched.
func (s *Service) Submit(ctx context.Context, tenantID, reviewID string) (domain.Review, error) {
	r, err := s.st.GetReview(ctx, tenantID, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if r.Status != domain.ReviewDraft {
		return domain.Review{}, fmt.Errorf("%w: submit from %s", domain.ErrInvalidTransition, r.Status)
	}
	r.Status = domain.ReviewInReview
	r.UpdatedAt = s.now().UTC()
	if err := s.st.UpdateReview(ctx, r); err != nil {
		return domain.Review{}, err
	}
	return r, nil
}

// Decide terminates an IN_REVIEW review. The decision hash is a pure function
// of subject identity, decision, and decider: two independent reviews of the
// same subject decided the same way by the same person hash identically.
func (s *Service) Decide(ctx context.Context, tenantID, reviewID string, decision domain.ReviewStatus, decidedBy string) (domain.Review, error) {
	if decision != domain.ReviewApproved && decision != domain.ReviewRejected {
		return domain.Review{}, fmt.Errorf("%w: decision must be APPROVED or REJECTED", domain.ErrValidation)
	}
	r, err := s.st.GetReview(ctx, tenantID, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if r.Status != domain.ReviewInReview {
		return domain.Review{}, fmt.Errorf("%w: decide from %s", domain.ErrInvalidTransition, r.Status)
	}

	decisionHash, err := DecisionHash(r.SubjectType, r.SubjectID, decision, decidedBy)
	if err != nil {
		return domain.Review{}, err
	}
	att, err := s.chain.Append(ctx, tenantID, map[string]any{
		"event":         "review_decided",
		"review_id":     r.ReviewID,
		"subject_type":  r.SubjectType,
		"subject_id":    r.SubjectID,
		"decision":      string(decision),
		"decided_by":    decidedBy,
		"decision_hash": decisionHash,
	})
	if err != nil {
		return domain.Review{}, err
	}

	r.Status = decision
	r.DecidedBy = decidedBy
	r.DecisionHash = decisionHash
	r.AttestationID = att.AttestationID
	r.UpdatedAt = s.now().UTC()
	if err := s.st.UpdateReview(ctx, r); err != nil {
		// The chain is append-only, so the decided link cannot be unwound.
		// Record the reversal so the chain never claims a decision the review
		// does not carry.
		_, _ = s.chain.Append(ctx, tenantID, map[string]any{
			"event":     "review_decision_reverted",
			"review_id": r.ReviewID,
			"reverts":   att.AttestationID,
			"reason":    err.Error(),
		})
		return domain.Review{}, err
	}
	return r, nil
}

// DecisionHash is the canonical hash of the decision facts.
func DecisionHash(subjectType, subjectID string, decision domain.ReviewStatus, decidedBy string) (string, error) {
	return canonhash.SumHex(map[string]any{
		"subject_type": subjectType,
		"subject_id":   subjectID,
		"decision":     string(decision),
		"decided_by":   decidedBy,
	})
}
