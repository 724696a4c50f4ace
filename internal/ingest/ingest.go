// Package ingest admits datasets and scenarios into the store. Payloads are
// validated against their kind's closed schema, canonically hashed, and
// content-addressed: re-ingesting identical content returns the existing
// record instead of minting a duplicate.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/metrics"
)

type Service struct {
	st  store.Store
	now func() time.Time
}

func New(st store.Store) *Service {
	return &Service{st: st, now: time.Now}
}

// IngestDataset validates, hashes, and stores a dataset. The bool is true when
// an identical payload was already present and the existing record is
// returned.
func (s *Service) IngestDataset(ctx context.Context, tenantID string, kind domain.DatasetKind, name string, payload map[string]any, createdBy string) (domain.Dataset, bool, error) {
	if err := domain.ValidateDatasetPayload(kind, payload); err != nil {
		return domain.Dataset{}, false, err
	}
	sha, err := canonhash.SumHex(payload)
	if err != nil {
		return domain.Dataset{}, false, err
	}
	d := domain.Dataset{
		DatasetID: "ds_" + uuid.NewString(),
		TenantID:  tenantID,
		Kind:      kind,
		Name:      name,
		Payload:   payload,
		SHA256:    sha,
		RowCount:  domain.DatasetRowCount(kind, payload),
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	stored, dedup, err := s.st.PutDataset(ctx, d)
	if err != nil {
		return domain.Dataset{}, false, err
	}
	if dedup {
		metrics.IngestDedupTotal.WithLabelValues(string(domain.TypeDataset)).Inc()
	}
	return stored, dedup, nil
}

// ValidateDataset checks a payload without persisting anything. The returned
// slice is empty when the payload is valid.
func (s *Service) ValidateDataset(kind domain.DatasetKind, payload map[string]any) []string {
	if err := domain.ValidateDatasetPayload(kind, payload); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// CreateScenario stores a scenario content-addressed by (kind, payload), the
// same policy datasets follow: identical content resolves to the existing
// scenario id.
func (s *Service) CreateScenario(ctx context.Context, tenantID string, kind domain.ScenarioKind, name string, payload map[string]any, createdBy string) (domain.Scenario, bool, error) {
	if err := domain.ValidateScenarioPayload(kind, payload); err != nil {
		return domain.Scenario{}, false, err
	}
	hash, err := canonhash.SumHex(payload)
	if err != nil {
		return domain.Scenario{}, false, err
	}
	sc := domain.Scenario{
		ScenarioID:  "scn_" + uuid.NewString(),
		TenantID:    tenantID,
		Kind:        kind,
		Name:        name,
		Payload:     payload,
		PayloadHash: hash,
		CreatedBy:   createdBy,
		CreatedAt:   s.now().UTC(),
	}
	stored, dedup, err := s.st.PutScenario(ctx, sc)
	if err != nil {
		return domain.Scenario{}, false, err
	}
	if dedup {
		metrics.IngestDedupTotal.WithLabelValues(string(domain.TypeScenario)).Inc()
	}
	return stored, dedup, nil
}
