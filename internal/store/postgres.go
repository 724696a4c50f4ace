package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
)

// Postgres is the production Store. Content-addressed dedup rides on unique
// indexes over (tenant_id, kind, hash); chain ordering on a per-tenant
// sequence column.
type Postgres struct{ DB *pgxpool.Pool }

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{DB: db} }

var _ Store = (*Postgres)(nil)

func (s *Postgres) PutDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, bool, error) {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return domain.Dataset{}, false, err
	}
	tag, err := s.DB.Exec(ctx, `INSERT INTO datasets(dataset_id,tenant_id,kind,name,payload,sha256,row_count,created_by,created_at)
VALUES($1,$2,$3,$4,$5::jsonb,$6,$7,$8,$9)
ON CONFLICT (tenant_id,kind,sha256) DO NOTHING`,
		d.DatasetID, d.TenantID, string(d.Kind), d.Name, string(payload), d.SHA256, d.RowCount, d.CreatedBy, d.CreatedAt)
	if err != nil {
		return domain.Dataset{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return d, false, nil
	}
	existing, err := s.datasetByHash(ctx, d.TenantID, string(d.Kind), d.SHA256)
	return existing, true, err
}

func (s *Postgres) datasetByHash(ctx context.Context, tenantID, kind, sha string) (domain.Dataset, error) {
	row := s.DB.QueryRow(ctx, `SELECT dataset_id,tenant_id,kind,name,payload,sha256,row_count,created_by,created_at
FROM datasets WHERE tenant_id=$1 AND kind=$2 AND sha256=$3`, tenantID, kind, sha)
	return scanDataset(row)
}

func (s *Postgres) GetDataset(ctx context.Context, tenantID, datasetID string) (domain.Dataset, error) {
	d, err := scanDataset(s.DB.QueryRow(ctx, `SELECT dataset_id,tenant_id,kind,name,payload,sha256,row_count,created_by,created_at
FROM datasets WHERE dataset_id=$1`, datasetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Dataset{}, fmt.Errorf("%w: %s", domain.ErrNotFound, datasetID)
	}
	if err != nil {
		return domain.Dataset{}, err
	}
	if d.TenantID != tenantID {
		return domain.Dataset{}, fmt.Errorf("%w: %s", domain.ErrForbidden, datasetID)
	}
	return d, nil
}

func (s *Postgres) ListDatasets(ctx context.Context, tenantID string) ([]domain.Dataset, error) {
	rows, err := s.DB.Query(ctx, `SELECT dataset_id,tenant_id,kind,name,payload,sha256,row_count,created_by,created_at
FROM datasets WHERE tenant_id=$1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDataset(row pgx.Row) (domain.Dataset, error) {
	var d domain.Dataset
	var kind string
	var payload []byte
	if err := row.Scan(&d.DatasetID, &d.TenantID, &kind, &d.Name, &payload, &d.SHA256, &d.RowCount, &d.CreatedBy, &d.CreatedAt); err != nil {
		return domain.Dataset{}, err
	}
	d.Kind = domain.DatasetKind(kind)
	if err := json.Unmarshal(payload, &d.Payload); err != nil {
		return domain.Dataset{}, err
	}
	return d, nil
}

func (s *Postgres) PutScenario(ctx context.Context, sc domain.Scenario) (domain.Scenario, bool, error) {
	payload, err := json.Marshal(sc.Payload)
	if err != nil {
		return domain.Scenario{}, false, err
	}
	tag, err := s.DB.Exec(ctx, `INSERT INTO scenarios(scenario_id,tenant_id,kind,name,payload,payload_hash,created_by,created_at)
VALUES($1,$2,$3,$4,$5::jsonb,$6,$7,$8)
ON CONFLICT (tenant_id,kind,payload_hash) DO NOTHING`,
		sc.ScenarioID, sc.TenantID, string(sc.Kind), sc.Name, string(payload), sc.PayloadHash, sc.CreatedBy, sc.CreatedAt)
	if err != nil {
		return domain.Scenario{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return sc, false, nil
	}
	row := s.DB.QueryRow(ctx, `SELECT scenario_id,tenant_id,kind,name,payload,payload_hash,created_by,created_at
FROM scenarios WHERE tenant_id=$1 AND kind=$2 AND payload_hash=$3`, sc.TenantID, string(sc.Kind), sc.PayloadHash)
	existing, err := scanScenario(row)
	return existing, true, err
}

func (s *Postgres) GetScenario(ctx context.Context, tenantID, scenarioID string) (domain.Scenario, error) {
	sc, err := scanScenario(s.DB.QueryRow(ctx, `SELECT scenario_id,tenant_id,kind,name,payload,payload_hash,created_by,created_at
FROM scenarios WHERE scenario_id=$1`, scenarioID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scenario{}, fmt.Errorf("%w: %s", domain.ErrNotFound, scenarioID)
	}
	if err != nil {
		return domain.Scenario{}, err
	}
	if sc.TenantID != tenantID {
		return domain.Scenario{}, fmt.Errorf("%w: %s", domain.ErrForbidden, scenarioID)
	}
	return sc, nil
}

func (s *Postgres) ListScenarios(ctx context.Context, tenantID string) ([]domain.Scenario, error) {
	rows, err := s.DB.Query(ctx, `SELECT scenario_id,tenant_id,kind,name,payload,payload_hash,created_by,created_at
FROM scenarios WHERE tenant_id=$1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func scanScenario(row pgx.Row) (domain.Scenario, error) {
	var sc domain.Scenario
	var kind string
	var payload []byte
	if err := row.Scan(&sc.ScenarioID, &sc.TenantID, &kind, &sc.Name, &payload, &sc.PayloadHash, &sc.CreatedBy, &sc.CreatedAt); err != nil {
		return domain.Scenario{}, err
	}
	sc.Kind = domain.ScenarioKind(kind)
	if err := json.Unmarshal(payload, &sc.Payload); err != nil {
		return domain.Scenario{}, err
	}
	return sc, nil
}

func (s *Postgres) AppendRun(ctx context.Context, r domain.Run) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO runs(run_id,tenant_id,scenario_id,dataset_id,inputs_hash,outputs_hash,triggered_by,replay,created_at)
VALUES($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9)`,
		r.RunID, r.TenantID, r.ScenarioID, r.DatasetID, r.InputsHash, r.OutputsHash, r.TriggeredBy, r.Replay, r.CreatedAt)
	return err
}

func (s *Postgres) ListRuns(ctx context.Context, tenantID, scenarioID string) ([]domain.Run, error) {
	rows, err := s.DB.Query(ctx, `SELECT run_id,tenant_id,scenario_id,COALESCE(dataset_id,''),inputs_hash,outputs_hash,triggered_by,replay,created_at
FROM runs WHERE tenant_id=$1 AND ($2='' OR scenario_id=$2) ORDER BY created_at ASC, run_id ASC`, tenantID, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Run
	for rows.Next() {
		var r domain.Run
		if err := rows.Scan(&r.RunID, &r.TenantID, &r.ScenarioID, &r.DatasetID, &r.InputsHash, &r.OutputsHash, &r.TriggeredBy, &r.Replay, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) LatestRun(ctx context.Context, tenantID, scenarioID string) (domain.Run, error) {
	var r domain.Run
	err := s.DB.QueryRow(ctx, `SELECT run_id,tenant_id,scenario_id,COALESCE(dataset_id,''),inputs_hash,outputs_hash,triggered_by,replay,created_at
FROM runs WHERE tenant_id=$1 AND scenario_id=$2 ORDER BY created_at DESC, run_id DESC LIMIT 1`, tenantID, scenarioID).
		Scan(&r.RunID, &r.TenantID, &r.ScenarioID, &r.DatasetID, &r.InputsHash, &r.OutputsHash, &r.TriggeredBy, &r.Replay, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("%w: no runs for scenario %s", domain.ErrNotFound, scenarioID)
	}
	return r, err
}

func (s *Postgres) CreateReview(ctx context.Context, r domain.Review) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO reviews(review_id,tenant_id,subject_type,subject_id,status,requested_by,notes,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ReviewID, r.TenantID, r.SubjectType, r.SubjectID, string(r.Status), r.RequestedBy, r.Notes, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Postgres) GetReview(ctx context.Context, tenantID, reviewID string) (domain.Review, error) {
	r, err := scanReview(s.DB.QueryRow(ctx, `SELECT review_id,tenant_id,subject_type,subject_id,status,requested_by,notes,COALESCE(decided_by,''),COALESCE(decision_hash,''),COALESCE(attestation_id,''),created_at,updated_at
FROM reviews WHERE review_id=$1`, reviewID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Review{}, fmt.Errorf("%w: %s", domain.ErrNotFound, reviewID)
	}
	if err != nil {
		return domain.Review{}, err
	}
	if r.TenantID != tenantID {
		return domain.Review{}, fmt.Errorf("%w: %s", domain.ErrForbidden, reviewID)
	}
	return r, nil
}

func (s *Postgres) UpdateReview(ctx context.Context, r domain.Review) error {
	tag, err := s.DB.Exec(ctx, `UPDATE reviews SET status=$1, decided_by=NULLIF($2,''), decision_hash=NULLIF($3,''), attestation_id=NULLIF($4,''), updated_at=$5
WHERE review_id=$6 AND tenant_id=$7`,
		string(r.Status), r.DecidedBy, r.DecisionHash, r.AttestationID, r.UpdatedAt, r.ReviewID, r.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, r.ReviewID)
	}
	return nil
}

func (s *Postgres) ListReviews(ctx context.Context, tenantID string) ([]domain.Review, error) {
	rows, err := s.DB.Query(ctx, `SELECT review_id,tenant_id,subject_type,subject_id,status,requested_by,notes,COALESCE(decided_by,''),COALESCE(decision_hash,''),COALESCE(attestation_id,''),created_at,updated_at
FROM reviews WHERE tenant_id=$1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var r domain.Review
	var status string
	if err := row.Scan(&r.ReviewID, &r.TenantID, &r.SubjectType, &r.SubjectID, &status, &r.RequestedBy, &r.Notes, &r.DecidedBy, &r.DecisionHash, &r.AttestationID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return domain.Review{}, err
	}
	r.Status = domain.ReviewStatus(status)
	return r, nil
}

func (s *Postgres) AppendAttestation(ctx context.Context, a domain.Attestation) error {
	ref, err := json.Marshal(a.PayloadRef)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `INSERT INTO attestations(attestation_id,tenant_id,seq,prev_hash,hash,payload_ref,created_at)
VALUES($1,$2,$3,$4,$5,$6::jsonb,$7)`,
		a.AttestationID, a.TenantID, a.Seq, a.PrevHash, a.Hash, string(ref), a.CreatedAt)
	return err
}

func (s *Postgres) GetAttestation(ctx context.Context, tenantID, attestationID string) (domain.Attestation, error) {
	a, err := scanAttestation(s.DB.QueryRow(ctx, `SELECT attestation_id,tenant_id,seq,prev_hash,hash,payload_ref,created_at
FROM attestations WHERE attestation_id=$1`, attestationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attestation{}, fmt.Errorf("%w: %s", domain.ErrNotFound, attestationID)
	}
	if err != nil {
		return domain.Attestation{}, err
	}
	if a.TenantID != tenantID {
		return domain.Attestation{}, fmt.Errorf("%w: %s", domain.ErrForbidden, attestationID)
	}
	return a, nil
}

func (s *Postgres) ChainHead(ctx context.Context, tenantID string) (domain.Attestation, error) {
	a, err := scanAttestation(s.DB.QueryRow(ctx, `SELECT attestation_id,tenant_id,seq,prev_hash,hash,payload_ref,created_at
FROM attestations WHERE tenant_id=$1 ORDER BY seq DESC LIMIT 1`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attestation{}, fmt.Errorf("%w: empty chain for tenant %s", domain.ErrNotFound, tenantID)
	}
	return a, err
}

func (s *Postgres) ListAttestations(ctx context.Context, tenantID string) ([]domain.Attestation, error) {
	rows, err := s.DB.Query(ctx, `SELECT attestation_id,tenant_id,seq,prev_hash,hash,payload_ref,created_at
FROM attestations WHERE tenant_id=$1 ORDER BY seq ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Attestation
	for rows.Next() {
		a, err := scanAttestation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttestation(row pgx.Row) (domain.Attestation, error) {
	var a domain.Attestation
	var ref []byte
	if err := row.Scan(&a.AttestationID, &a.TenantID, &a.Seq, &a.PrevHash, &a.Hash, &ref, &a.CreatedAt); err != nil {
		return domain.Attestation{}, err
	}
	if err := json.Unmarshal(ref, &a.PayloadRef); err != nil {
		return domain.Attestation{}, err
	}
	return a, nil
}

func (s *Postgres) PutPacket(ctx context.Context, p domain.DecisionPacket) error {
	files, err := json.Marshal(p.FileHashes)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `INSERT INTO decision_packets(packet_id,tenant_id,subject_type,subject_id,file_hashes,manifest_hash,requested_by,created_at)
VALUES($1,$2,$3,$4,$5::jsonb,$6,$7,$8)`,
		p.PacketID, p.TenantID, p.SubjectType, p.SubjectID, string(files), p.ManifestHash, p.RequestedBy, p.CreatedAt)
	return err
}

func (s *Postgres) GetPacket(ctx context.Context, tenantID, packetID string) (domain.DecisionPacket, error) {
	p, err := scanPacket(s.DB.QueryRow(ctx, `SELECT packet_id,tenant_id,subject_type,subject_id,file_hashes,manifest_hash,requested_by,created_at
FROM decision_packets WHERE packet_id=$1`, packetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DecisionPacket{}, fmt.Errorf("%w: %s", domain.ErrNotFound, packetID)
	}
	if err != nil {
		return domain.DecisionPacket{}, err
	}
	if p.TenantID != tenantID {
		return domain.DecisionPacket{}, fmt.Errorf("%w: %s", domain.ErrForbidden, packetID)
	}
	return p, nil
}

func (s *Postgres) ListPackets(ctx context.Context, tenantID string) ([]domain.DecisionPacket, error) {
	rows, err := s.DB.Query(ctx, `SELECT packet_id,tenant_id,subject_type,subject_id,file_hashes,manifest_hash,requested_by,created_at
FROM decision_packets WHERE tenant_id=$1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DecisionPacket
	for rows.Next() {
		p, err := scanPacket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPacket(row pgx.Row) (domain.DecisionPacket, error) {
	var p domain.DecisionPacket
	var files []byte
	if err := row.Scan(&p.PacketID, &p.TenantID, &p.SubjectType, &p.SubjectID, &files, &p.ManifestHash, &p.RequestedBy, &p.CreatedAt); err != nil {
		return domain.DecisionPacket{}, err
	}
	if err := json.Unmarshal(files, &p.FileHashes); err != nil {
		return domain.DecisionPacket{}, err
	}
	return p, nil
}

func (s *Postgres) PutSignature(ctx context.Context, sig domain.Signature) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO signatures(signature_id,tenant_id,packet_id,algorithm,public_key,signature,signed_by,created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		sig.SignatureID, sig.TenantID, sig.PacketID, sig.Algorithm, sig.PublicKey, sig.Signature, sig.SignedBy, sig.CreatedAt)
	return err
}

func (s *Postgres) GetSignatureByPacket(ctx context.Context, tenantID, packetID string) (domain.Signature, error) {
	var sig domain.Signature
	err := s.DB.QueryRow(ctx, `SELECT signature_id,tenant_id,packet_id,algorithm,public_key,signature,signed_by,created_at
FROM signatures WHERE packet_id=$1 ORDER BY created_at DESC, signature_id DESC LIMIT 1`, packetID).
		Scan(&sig.SignatureID, &sig.TenantID, &sig.PacketID, &sig.Algorithm, &sig.PublicKey, &sig.Signature, &sig.SignedBy, &sig.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Signature{}, fmt.Errorf("%w: no signature for packet %s", domain.ErrNotFound, packetID)
	}
	if err != nil {
		return domain.Signature{}, err
	}
	if sig.TenantID != tenantID {
		return domain.Signature{}, fmt.Errorf("%w: %s", domain.ErrForbidden, packetID)
	}
	return sig, nil
}

func (s *Postgres) ListSignatures(ctx context.Context, tenantID string) ([]domain.Signature, error) {
	rows, err := s.DB.Query(ctx, `SELECT signature_id,tenant_id,packet_id,algorithm,public_key,signature,signed_by,created_at
FROM signatures WHERE tenant_id=$1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Signature
	for rows.Next() {
		var sig domain.Signature
		if err := rows.Scan(&sig.SignatureID, &sig.TenantID, &sig.PacketID, &sig.Algorithm, &sig.PublicKey, &sig.Signature, &sig.SignedBy, &sig.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
