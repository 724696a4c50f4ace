// Package domain holds the entity model of the provenance core and the shared
// error taxonomy. Every entity is tenant-scoped; hashes are lowercase 64-char
// hex SHA-256 digests computed over canonical payload forms.
package domain

import "time"

type EntityType string

const (
	TypeDataset     EntityType = "dataset"
	TypeScenario    EntityType = "scenario"
	TypeRun         EntityType = "run"
	TypeReview      EntityType = "review"
	TypeAttestation EntityType = "attestation"
	TypePacket      EntityType = "packet"
	TypeSignature   EntityType = "signature"
)

type DatasetKind string

const (
	DatasetPortfolio DatasetKind = "portfolio"
	DatasetPrices    DatasetKind = "prices"
	DatasetFactors   DatasetKind = "factors"
)

type ScenarioKind string

const (
	ScenarioStress      ScenarioKind = "stress"
	ScenarioWhatIf      ScenarioKind = "whatif"
	ScenarioShockLadder ScenarioKind = "shock_ladder"
)

type ReviewStatus string

const (
	ReviewDraft    ReviewStatus = "DRAFT"
	ReviewInReview ReviewStatus = "IN_REVIEW"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// Dataset is immutable once ingested. SHA256 is the canonical payload hash;
// re-ingesting an identical payload for the same tenant returns the existing
// record.
type Dataset struct {
	DatasetID string         `json:"dataset_id"`
	TenantID  string         `json:"tenant_id"`
	Kind      DatasetKind    `json:"kind"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	SHA256    string         `json:"sha256"`
	RowCount  int            `json:"row_count"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}

// Scenario is content-addressed the same way datasets are: identical
// (kind, payload) for a tenant resolves to the existing scenario_id.
type Scenario struct {
	ScenarioID  string         `json:"scenario_id"`
	TenantID    string         `json:"tenant_id"`
	Kind        ScenarioKind   `json:"kind"`
	Name        string         `json:"name"`
	Payload     map[string]any `json:"payload"`
	PayloadHash string         `json:"payload_hash"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Run records one execution of a scenario. Runs are events: never deduplicated,
// never edited. OutputsHash is a pure function of InputsHash and the
// computation version.
type Run struct {
	RunID       string    `json:"run_id"`
	TenantID    string    `json:"tenant_id"`
	ScenarioID  string    `json:"scenario_id"`
	DatasetID   string    `json:"dataset_id,omitempty"`
	InputsHash  string    `json:"inputs_hash"`
	OutputsHash string    `json:"outputs_hash"`
	TriggeredBy string    `json:"triggered_by"`
	Replay      bool      `json:"replay"`
	CreatedAt   time.Time `json:"created_at"`
}

// Review moves only forward through DRAFT -> IN_REVIEW -> {APPROVED, REJECTED}.
// DecisionHash and AttestationID are set exactly once, on the terminal
// transition.
type Review struct {
	ReviewID      string       `json:"review_id"`
	TenantID      string       `json:"tenant_id"`
	SubjectType   string       `json:"subject_type"`
	SubjectID     string       `json:"subject_id"`
	Status        ReviewStatus `json:"status"`
	RequestedBy   string       `json:"requested_by"`
	Notes         string       `json:"notes,omitempty"`
	DecidedBy     string       `json:"decided_by,omitempty"`
	DecisionHash  string       `json:"decision_hash,omitempty"`
	AttestationID string       `json:"attestation_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Attestation is one link of the per-tenant hash chain.
// Hash = SHA256(prev_hash || canonical(payload_ref)). Seq is 1-based position
// in the tenant chain; PrevHash of the first link is the genesis constant.
type Attestation struct {
	AttestationID string         `json:"attestation_id"`
	TenantID      string         `json:"tenant_id"`
	Seq           int64          `json:"seq"`
	PrevHash      string         `json:"prev_hash"`
	Hash          string         `json:"hash"`
	PayloadRef    map[string]any `json:"payload_ref"`
	CreatedAt     time.Time      `json:"created_at"`
}

// DecisionPacket bundles the artifact hashes relevant to a subject at
// generation time. ManifestHash covers the sorted file hashes plus subject
// identity. Packets are immutable; changed inputs require a new packet.
type DecisionPacket struct {
	PacketID     string            `json:"packet_id"`
	TenantID     string            `json:"tenant_id"`
	SubjectType  string            `json:"subject_type"`
	SubjectID    string            `json:"subject_id"`
	FileHashes   map[string]string `json:"file_hashes"`
	ManifestHash string            `json:"manifest_hash"`
	RequestedBy  string            `json:"requested_by"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Signature is a write-once asymmetric signature over a packet manifest hash.
type Signature struct {
	SignatureID string    `json:"signature_id"`
	TenantID    string    `json:"tenant_id"`
	PacketID    string    `json:"packet_id"`
	Algorithm   string    `json:"algorithm"`
	PublicKey   string    `json:"public_key"`
	Signature   string    `json:"signature"`
	SignedBy    string    `json:"signed_by"`
	CreatedAt   time.Time `json:"created_at"`
}
