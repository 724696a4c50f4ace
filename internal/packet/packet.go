// Package packet assembles decision packets: a manifest of the artifact hashes
// relevant to a subject, fingerprinted by a manifest hash, optionally signed
// by the service key. Verification recomputes everything from the supplied
// files and reports mismatch as false, never as an error.
package packet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/signature"
)

type Service struct {
	st      store.Store
	keyring *signature.Keyring
	now     func() time.Time
}

func New(st store.Store, kr *signature.Keyring) *Service {
	return &Service{st: st, keyring: kr, now: time.Now}
}

// ManifestHash fingerprints a sorted file-hash set plus subject identity.
// Paths are sorted lexicographically; the same files always produce the same
// manifest hash.
func ManifestHash(subjectType, subjectID string, fileHashes map[string]string) string {
	paths := make([]string, 0, len(fileHashes))
	for p := range fileHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString(subjectType)
	b.WriteString("\n")
	b.WriteString(subjectID)
	b.WriteString("\n")
	for _, p := range paths {
		b.WriteString(p)
		b.WriteString(":")
		b.WriteString(fileHashes[p])
		b.WriteString("\n")
	}
	return canonhash.SumString(b.String())
}

// Generate collects the artifact hashes for the subject at this moment and
// persists an immutable packet. A later change to the underlying entities
// requires generating a new packet.
func (s *Service) Generate(ctx context.Context, tenantID, subjectType, subjectID, requestedBy string) (domain.DecisionPacket, error) {
	files, err := s.collect(ctx, tenantID, subjectType, subjectID)
	if err != nil {
		return domain.DecisionPacket{}, err
	}
	if len(files) == 0 {
		return domain.DecisionPacket{}, fmt.Errorf("%w: no artifacts for %s %s", domain.ErrNotFound, subjectType, subjectID)
	}
	p := domain.DecisionPacket{
		PacketID:     "pkt_" + uuid.NewString(),
		TenantID:     tenantID,
		SubjectType:  subjectType,
		SubjectID:    subjectID,
		FileHashes:   files,
		ManifestHash: ManifestHash(subjectType, subjectID, files),
		RequestedBy:  requestedBy,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.st.PutPacket(ctx, p); err != nil {
		return domain.DecisionPacket{}, err
	}
	return p, nil
}

func (s *Service) collect(ctx context.Context, tenantID, subjectType, subjectID string) (map[string]string, error) {
	files := map[string]string{}

	switch subjectType {
	case "dataset":
		d, err := s.st.GetDataset(ctx, tenantID, subjectID)
		if err != nil {
			return nil, err
		}
		files["dataset/"+d.DatasetID+"/payload"] = d.SHA256
	case "scenario":
		sc, err := s.st.GetScenario(ctx, tenantID, subjectID)
		if err != nil {
			return nil, err
		}
		files["scenario/"+sc.ScenarioID+"/payload"] = sc.PayloadHash
		run, err := s.st.LatestRun(ctx, tenantID, subjectID)
		switch {
		case err == nil:
			files["run/"+run.RunID+"/inputs"] = run.InputsHash
			files["run/"+run.RunID+"/outputs"] = run.OutputsHash
		case errors.Is(err, domain.ErrNotFound):
			// never executed, packet carries the payload hash only
		default:
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown subject_type %q", domain.ErrValidation, subjectType)
	}

	reviews, err := s.st.ListReviews(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		if r.SubjectType != subjectType || r.SubjectID != subjectID || r.DecisionHash == "" {
			continue
		}
		files["review/"+r.ReviewID+"/decision"] = r.DecisionHash
	}
	return files, nil
}

// Sign issues the service signature over the packet's manifest hash. The
// supplied manifest hash must match the stored one; signing a stale fingerprint
// is refused.
func (s *Service) Sign(ctx context.Context, tenantID, packetID, manifestHash, signedBy string) (domain.Signature, error) {
	p, err := s.st.GetPacket(ctx, tenantID, packetID)
	if err != nil {
		return domain.Signature{}, err
	}
	if manifestHash != p.ManifestHash {
		return domain.Signature{}, fmt.Errorf("%w: manifest_hash does not match packet", domain.ErrValidation)
	}
	sigHex, err := s.keyring.SignDigestHex(p.ManifestHash)
	if err != nil {
		return domain.Signature{}, err
	}
	sig := domain.Signature{
		SignatureID: "sig_" + uuid.NewString(),
		TenantID:    tenantID,
		PacketID:    packetID,
		Algorithm:   signature.AlgorithmEd25519,
		PublicKey:   s.keyring.PublicKeyHex(),
		Signature:   sigHex,
		SignedBy:    signedBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.st.PutSignature(ctx, sig); err != nil {
		return domain.Signature{}, err
	}
	return sig, nil
}

// Verify recomputes the manifest hash from the supplied files and checks it
// against both the caller's claim and the stored packet, then checks the
// stored signature (if any) against the stored public key. Any mismatch is
// false; errors are reserved for store failures.
func (s *Service) Verify(ctx context.Context, tenantID, packetID, manifestHash string, files map[string]string) (bool, error) {
	p, err := s.st.GetPacket(ctx, tenantID, packetID)
	if err != nil {
		return false, err
	}
	recomputed := ManifestHash(p.SubjectType, p.SubjectID, files)
	if recomputed != manifestHash || recomputed != p.ManifestHash {
		return false, nil
	}

	sig, err := s.st.GetSignatureByPacket(ctx, tenantID, packetID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if sig.Algorithm != signature.AlgorithmEd25519 {
		return false, nil
	}
	if err := signature.VerifyDigestHex(p.ManifestHash, sig.PublicKey, sig.Signature); err != nil {
		return false, nil
	}
	return true, nil
}
