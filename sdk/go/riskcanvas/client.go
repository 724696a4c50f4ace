// Package riskcanvas is the Go client for the evidence core HTTP API. It
// mirrors the server's resource surface one method per endpoint and surfaces
// API failures as *Error with the server's taxonomy code intact.
package riskcanvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const TenantHeader = "X-Tenant-ID"

// Error is a non-2xx API response. Code carries the server taxonomy
// (VALIDATION_ERROR, NOT_FOUND, FORBIDDEN, INVALID_TRANSITION,
// DETERMINISM_VIOLATION, ...).
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Details    map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("riskcanvas: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL    string
	tenant     string
	httpClient *http.Client
}

func NewClient(baseURL, tenant string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tenant:     tenant,
		httpClient: httpClient,
	}
}

type Dataset struct {
	DatasetID string         `json:"dataset_id"`
	Kind      string         `json:"kind"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	SHA256    string         `json:"sha256"`
	RowCount  int            `json:"row_count"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}

type Scenario struct {
	ScenarioID  string         `json:"scenario_id"`
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Payload     map[string]any `json:"payload"`
	PayloadHash string         `json:"payload_hash"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Run struct {
	RunID       string    `json:"run_id"`
	ScenarioID  string    `json:"scenario_id"`
	DatasetID   string    `json:"dataset_id,omitempty"`
	InputsHash  string    `json:"inputs_hash"`
	OutputsHash string    `json:"outputs_hash"`
	TriggeredBy string    `json:"triggered_by"`
	Replay      bool      `json:"replay"`
	CreatedAt   time.Time `json:"created_at"`
}

type Review struct {
	ReviewID      string    `json:"review_id"`
	SubjectType   string    `json:"subject_type"`
	SubjectID     string    `json:"subject_id"`
	Status        string    `json:"status"`
	RequestedBy   string    `json:"requested_by"`
	Notes         string    `json:"notes,omitempty"`
	DecidedBy     string    `json:"decided_by,omitempty"`
	DecisionHash  string    `json:"decision_hash,omitempty"`
	AttestationID string    `json:"attestation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Attestation struct {
	AttestationID string         `json:"attestation_id"`
	Seq           int64          `json:"seq"`
	PrevHash      string         `json:"prev_hash"`
	Hash          string         `json:"hash"`
	PayloadRef    map[string]any `json:"payload_ref"`
	CreatedAt     time.Time      `json:"created_at"`
}

type DecisionPacket struct {
	PacketID     string            `json:"packet_id"`
	SubjectType  string            `json:"subject_type"`
	SubjectID    string            `json:"subject_id"`
	FileHashes   map[string]string `json:"file_hashes"`
	ManifestHash string            `json:"manifest_hash"`
	RequestedBy  string            `json:"requested_by"`
	CreatedAt    time.Time         `json:"created_at"`
}

type Signature struct {
	SignatureID string    `json:"signature_id"`
	PacketID    string    `json:"packet_id"`
	Algorithm   string    `json:"algorithm"`
	PublicKey   string    `json:"public_key"`
	Signature   string    `json:"signature"`
	SignedBy    string    `json:"signed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type IngestResult struct {
	Deduplicated bool    `json:"deduplicated"`
	Dataset      Dataset `json:"dataset"`
}

type ScenarioResult struct {
	Deduplicated bool     `json:"deduplicated"`
	Scenario     Scenario `json:"scenario"`
}

type ChainVerifyResult struct {
	Valid               bool   `json:"valid"`
	FailedAttestationID string `json:"failed_attestation_id,omitempty"`
}

type GraphSummary struct {
	CountsByType     map[string]int `json:"counts_by_type"`
	EdgeCountsByType map[string]int `json:"edge_counts_by_type"`
	SummaryHash      string         `json:"summary_hash"`
}

func (c *Client) IngestDataset(ctx context.Context, kind, name string, payload map[string]any, createdBy string) (IngestResult, error) {
	var out IngestResult
	err := c.do(ctx, http.MethodPost, "/datasets/ingest", map[string]any{
		"kind": kind, "name": name, "payload": payload, "created_by": createdBy,
	}, &out)
	return out, err
}

func (c *Client) CreateScenario(ctx context.Context, kind, name string, payload map[string]any, createdBy string) (ScenarioResult, error) {
	var out ScenarioResult
	err := c.do(ctx, http.MethodPost, "/scenarios-v2", map[string]any{
		"kind": kind, "name": name, "payload": payload, "created_by": createdBy,
	}, &out)
	return out, err
}

// RunScenario executes a scenario; datasetID is optional and links the run to
// the dataset it was evaluated against.
func (c *Client) RunScenario(ctx context.Context, scenarioID, datasetID, triggeredBy string) (Run, error) {
	var out struct {
		Run Run `json:"run"`
	}
	err := c.do(ctx, http.MethodPost, "/scenarios-v2/"+scenarioID+"/run", map[string]any{
		"dataset_id": datasetID, "triggered_by": triggeredBy,
	}, &out)
	return out.Run, err
}

func (c *Client) ReplayScenario(ctx context.Context, scenarioID, datasetID, triggeredBy string) (Run, error) {
	var out struct {
		Run Run `json:"run"`
	}
	err := c.do(ctx, http.MethodPost, "/scenarios-v2/"+scenarioID+"/replay", map[string]any{
		"dataset_id": datasetID, "triggered_by": triggeredBy,
	}, &out)
	return out.Run, err
}

func (c *Client) ListRuns(ctx context.Context, scenarioID string) ([]Run, error) {
	var out struct {
		Runs []Run `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, "/scenarios-v2/"+scenarioID+"/runs", nil, &out)
	return out.Runs, err
}

func (c *Client) CreateReview(ctx context.Context, subjectType, subjectID, requestedBy, notes string) (Review, error) {
	var out struct {
		Review Review `json:"review"`
	}
	err := c.do(ctx, http.MethodPost, "/reviews", map[string]any{
		"subject_type": subjectType, "subject_id": subjectID,
		"requested_by": requestedBy, "notes": notes,
	}, &out)
	return out.Review, err
}

func (c *Client) SubmitReview(ctx context.Context, reviewID string) (Review, error) {
	var out struct {
		Review Review `json:"review"`
	}
	err := c.do(ctx, http.MethodPost, "/reviews/"+reviewID+"/submit", map[string]any{}, &out)
	return out.Review, err
}

func (c *Client) DecideReview(ctx context.Context, reviewID, decision, decidedBy string) (Review, error) {
	var out struct {
		Review Review `json:"review"`
	}
	err := c.do(ctx, http.MethodPost, "/reviews/"+reviewID+"/decide", map[string]any{
		"decision": decision, "decided_by": decidedBy,
	}, &out)
	return out.Review, err
}

func (c *Client) ListAttestations(ctx context.Context) ([]Attestation, error) {
	var out struct {
		Attestations []Attestation `json:"attestations"`
	}
	err := c.do(ctx, http.MethodGet, "/attestations", nil, &out)
	return out.Attestations, err
}

func (c *Client) VerifyChain(ctx context.Context) (ChainVerifyResult, error) {
	var out ChainVerifyResult
	err := c.do(ctx, http.MethodPost, "/attestations/verify", map[string]any{}, &out)
	return out, err
}

func (c *Client) GeneratePacket(ctx context.Context, subjectType, subjectID, requestedBy string) (DecisionPacket, error) {
	var out struct {
		Packet DecisionPacket `json:"packet"`
	}
	err := c.do(ctx, http.MethodPost, "/exports/decision-packet", map[string]any{
		"subject_type": subjectType, "subject_id": subjectID, "requested_by": requestedBy,
	}, &out)
	return out.Packet, err
}

func (c *Client) SignPacket(ctx context.Context, packetID, manifestHash, signedBy string) (Signature, error) {
	var out struct {
		Signature Signature `json:"signature"`
	}
	err := c.do(ctx, http.MethodPost, "/signatures/sign", map[string]any{
		"packet_id": packetID, "manifest_hash": manifestHash, "signed_by": signedBy,
	}, &out)
	return out.Signature, err
}

func (c *Client) VerifyPacket(ctx context.Context, packetID, manifestHash string, files map[string]string) (bool, error) {
	var out struct {
		Verified bool `json:"verified"`
	}
	err := c.do(ctx, http.MethodPost, "/signatures/"+packetID+"/verify", map[string]any{
		"manifest_hash": manifestHash, "files": files,
	}, &out)
	return out.Verified, err
}

func (c *Client) GetGraphSummary(ctx context.Context) (GraphSummary, error) {
	var out GraphSummary
	err := c.do(ctx, http.MethodGet, "/evidence/graph/summary", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set(TenantHeader, c.tenant)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeError(status int, raw []byte) error {
	var envelope struct {
		RequestID string `json:"request_id"`
		Err       struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	apiErr := &Error{StatusCode: status}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Err.Code
		apiErr.Message = envelope.Err.Message
		apiErr.RequestID = envelope.RequestID
		apiErr.Details = envelope.Err.Details
	}
	return apiErr
}
