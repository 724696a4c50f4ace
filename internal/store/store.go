// Package store persists the provenance entities. All reads and writes are
// tenant-scoped. Datasets and scenarios are content-addressed: putting an
// identical canonical payload for the same tenant returns the existing record.
// Runs, attestations, signatures and packets are events and always insert.
package store

import (
	"context"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
)

// Store is the persistence boundary of the core. Implementations must
// guarantee read-after-write visibility within a tenant.
type Store interface {
	// PutDataset upserts by content hash. The returned bool is true when an
	// existing record was reused instead of inserting a duplicate.
	PutDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, bool, error)
	GetDataset(ctx context.Context, tenantID, datasetID string) (domain.Dataset, error)
	ListDatasets(ctx context.Context, tenantID string) ([]domain.Dataset, error)

	// PutScenario upserts by content hash, same contract as PutDataset.
	PutScenario(ctx context.Context, s domain.Scenario) (domain.Scenario, bool, error)
	GetScenario(ctx context.Context, tenantID, scenarioID string) (domain.Scenario, error)
	ListScenarios(ctx context.Context, tenantID string) ([]domain.Scenario, error)

	AppendRun(ctx context.Context, r domain.Run) error
	ListRuns(ctx context.Context, tenantID, scenarioID string) ([]domain.Run, error)
	// LatestRun returns the most recent run for a scenario, domain.ErrNotFound
	// when the scenario has never been run.
	LatestRun(ctx context.Context, tenantID, scenarioID string) (domain.Run, error)

	CreateReview(ctx context.Context, r domain.Review) error
	GetReview(ctx context.Context, tenantID, reviewID string) (domain.Review, error)
	UpdateReview(ctx context.Context, r domain.Review) error
	ListReviews(ctx context.Context, tenantID string) ([]domain.Review, error)

	AppendAttestation(ctx context.Context, a domain.Attestation) error
	GetAttestation(ctx context.Context, tenantID, attestationID string) (domain.Attestation, error)
	// ChainHead returns the newest attestation, domain.ErrNotFound on an empty
	// chain.
	ChainHead(ctx context.Context, tenantID string) (domain.Attestation, error)
	// ListAttestations returns the full chain ordered by sequence, oldest
	// first.
	ListAttestations(ctx context.Context, tenantID string) ([]domain.Attestation, error)

	PutPacket(ctx context.Context, p domain.DecisionPacket) error
	GetPacket(ctx context.Context, tenantID, packetID string) (domain.DecisionPacket, error)
	ListPackets(ctx context.Context, tenantID string) ([]domain.DecisionPacket, error)

	// PutSignature always inserts; signatures are write-once events.
	PutSignature(ctx context.Context, s domain.Signature) error
	// GetSignatureByPacket returns the newest signature over the packet.
	GetSignatureByPacket(ctx context.Context, tenantID, packetID string) (domain.Signature, error)
	ListSignatures(ctx context.Context, tenantID string) ([]domain.Signature, error)
}
