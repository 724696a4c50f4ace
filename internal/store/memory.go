package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
)

// Memory is the in-process Store used by tests and dev mode. A single RWMutex
// guards all tables; per-tenant write contention is acceptable at this scale.
// The id index spans tenants so cross-tenant reads can be distinguished from
// plain misses and rejected with domain.ErrForbidden.
type Memory struct {
	mu sync.RWMutex

	datasets     map[string]map[string]domain.Dataset  // tenant -> id -> record
	datasetHash  map[string]map[string]string          // tenant -> kind\x00hash -> id
	scenarios    map[string]map[string]domain.Scenario
	scenarioHash map[string]map[string]string
	runs         map[string][]domain.Run // tenant -> append order
	reviews      map[string]map[string]domain.Review
	attestations map[string][]domain.Attestation // tenant -> chain order
	packets      map[string]map[string]domain.DecisionPacket
	signatures   map[string][]domain.Signature // tenant -> append order

	owner map[string]string // any entity id -> tenant
}

func NewMemory() *Memory {
	return &Memory{
		datasets:     map[string]map[string]domain.Dataset{},
		datasetHash:  map[string]map[string]string{},
		scenarios:    map[string]map[string]domain.Scenario{},
		scenarioHash: map[string]map[string]string{},
		runs:         map[string][]domain.Run{},
		reviews:      map[string]map[string]domain.Review{},
		attestations: map[string][]domain.Attestation{},
		packets:      map[string]map[string]domain.DecisionPacket{},
		signatures:   map[string][]domain.Signature{},
		owner:        map[string]string{},
	}
}

var _ Store = (*Memory)(nil)

// checkTenant distinguishes a cross-tenant hit from a genuine miss.
func (m *Memory) checkTenant(tenantID, entityID string) error {
	owner, ok := m.owner[entityID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, entityID)
	}
	if owner != tenantID {
		return fmt.Errorf("%w: %s", domain.ErrForbidden, entityID)
	}
	return nil
}

func (m *Memory) PutDataset(_ context.Context, d domain.Dataset) (domain.Dataset, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(d.Kind) + "\x00" + d.SHA256
	if idx, ok := m.datasetHash[d.TenantID]; ok {
		if id, ok := idx[key]; ok {
			return m.datasets[d.TenantID][id], true, nil
		}
	}
	if m.datasets[d.TenantID] == nil {
		m.datasets[d.TenantID] = map[string]domain.Dataset{}
		m.datasetHash[d.TenantID] = map[string]string{}
	}
	m.datasets[d.TenantID][d.DatasetID] = d
	m.datasetHash[d.TenantID][key] = d.DatasetID
	m.owner[d.DatasetID] = d.TenantID
	return d, false, nil
}

func (m *Memory) GetDataset(_ context.Context, tenantID, datasetID string) (domain.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTenant(tenantID, datasetID); err != nil {
		return domain.Dataset{}, err
	}
	return m.datasets[tenantID][datasetID], nil
}

func (m *Memory) ListDatasets(_ context.Context, tenantID string) ([]domain.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Dataset, 0, len(m.datasets[tenantID]))
	for _, d := range m.datasets[tenantID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PutScenario(_ context.Context, s domain.Scenario) (domain.Scenario, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(s.Kind) + "\x00" + s.PayloadHash
	if idx, ok := m.scenarioHash[s.TenantID]; ok {
		if id, ok := idx[key]; ok {
			return m.scenarios[s.TenantID][id], true, nil
		}
	}
	if m.scenarios[s.TenantID] == nil {
		m.scenarios[s.TenantID] = map[string]domain.Scenario{}
		m.scenarioHash[s.TenantID] = map[string]string{}
	}
	m.scenarios[s.TenantID][s.ScenarioID] = s
	m.scenarioHash[s.TenantID][key] = s.ScenarioID
	m.owner[s.ScenarioID] = s.TenantID
	return s, false, nil
}

func (m *Memory) GetScenario(_ context.Context, tenantID, scenarioID string) (domain.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTenant(tenantID, scenarioID); err != nil {
		return domain.Scenario{}, err
	}
	return m.scenarios[tenantID][scenarioID], nil
}

func (m *Memory) ListScenarios(_ context.Context, tenantID string) ([]domain.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Scenario, 0, len(m.scenarios[tenantID]))
	for _, s := range m.scenarios[tenantID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AppendRun(_ context.Context, r domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.TenantID] = append(m.runs[r.TenantID], r)
	m.owner[r.RunID] = r.TenantID
	return nil
}

func (m *Memory) ListRuns(_ context.Context, tenantID, scenarioID string) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Run
	for _, r := range m.runs[tenantID] {
		if scenarioID == "" || r.ScenarioID == scenarioID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) LatestRun(_ context.Context, tenantID, scenarioID string) (domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := m.runs[tenantID]
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].ScenarioID == scenarioID {
			return runs[i], nil
		}
	}
	return domain.Run{}, fmt.Errorf("%w: no runs for scenario %s", domain.ErrNotFound, scenarioID)
}

func (m *Memory) CreateReview(_ context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reviews[r.TenantID] == nil {
		m.reviews[r.TenantID] = map[string]domain.Review{}
	}
	m.reviews[r.TenantID][r.ReviewID] = r
	m.owner[r.ReviewID] = r.TenantID
	return nil
}

func (m *Memory) GetReview(_ context.Context, tenantID, reviewID string) (domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTenant(tenantID, reviewID); err != nil {
		return domain.Review{}, err
	}
	return m.reviews[tenantID][reviewID], nil
}

func (m *Memory) UpdateReview(_ context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkTenant(r.TenantID, r.ReviewID); err != nil {
		return err
	}
	m.reviews[r.TenantID][r.ReviewID] = r
	return nil
}

func (m *Memory) ListReviews(_ context.Context, tenantID string) ([]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Review, 0, len(m.reviews[tenantID]))
	for _, r := range m.reviews[tenantID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AppendAttestation(_ context.Context, a domain.Attestation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attestations[a.TenantID] = append(m.attestations[a.TenantID], a)
	m.owner[a.AttestationID] = a.TenantID
	return nil
}

func (m *Memory) GetAttestation(_ context.Context, tenantID, attestationID string) (domain.Attestation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTenant(tenantID, attestationID); err != nil {
		return domain.Attestation{}, err
	}
	for _, a := range m.attestations[tenantID] {
		if a.AttestationID == attestationID {
			return a, nil
		}
	}
	return domain.Attestation{}, fmt.Errorf("%w: %s", domain.ErrNotFound, attestationID)
}

func (m *Memory) ChainHead(_ context.Context, tenantID string) (domain.Attestation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.attestations[tenantID]
	if len(chain) == 0 {
		return domain.Attestation{}, fmt.Errorf("%w: empty chain for tenant %s", domain.ErrNotFound, tenantID)
	}
	return chain[len(chain)-1], nil
}

func (m *Memory) ListAttestations(_ context.Context, tenantID string) ([]domain.Attestation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Attestation, len(m.attestations[tenantID]))
	copy(out, m.attestations[tenantID])
	return out, nil
}

func (m *Memory) PutPacket(_ context.Context, p domain.DecisionPacket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.packets[p.TenantID] == nil {
		m.packets[p.TenantID] = map[string]domain.DecisionPacket{}
	}
	m.packets[p.TenantID][p.PacketID] = p
	m.owner[p.PacketID] = p.TenantID
	return nil
}

func (m *Memory) GetPacket(_ context.Context, tenantID, packetID string) (domain.DecisionPacket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTenant(tenantID, packetID); err != nil {
		return domain.DecisionPacket{}, err
	}
	return m.packets[tenantID][packetID], nil
}

func (m *Memory) ListPackets(_ context.Context, tenantID string) ([]domain.DecisionPacket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DecisionPacket, 0, len(m.packets[tenantID]))
	for _, p := range m.packets[tenantID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PutSignature appends. Signatures are events like runs and attestations:
// signing a packet twice leaves two records.
func (m *Memory) PutSignature(_ context.Context, s domain.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures[s.TenantID] = append(m.signatures[s.TenantID], s)
	m.owner[s.SignatureID] = s.TenantID
	return nil
}

// GetSignatureByPacket returns the newest signature over the packet.
func (m *Memory) GetSignatureByPacket(_ context.Context, tenantID, packetID string) (domain.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if owner, ok := m.owner[packetID]; ok && owner != tenantID {
		return domain.Signature{}, fmt.Errorf("%w: %s", domain.ErrForbidden, packetID)
	}
	sigs := m.signatures[tenantID]
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].PacketID == packetID {
			return sigs[i], nil
		}
	}
	return domain.Signature{}, fmt.Errorf("%w: no signature for packet %s", domain.ErrNotFound, packetID)
}

func (m *Memory) ListSignatures(_ context.Context, tenantID string) ([]domain.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Signature, len(m.signatures[tenantID]))
	copy(out, m.signatures[tenantID])
	return out, nil
}
