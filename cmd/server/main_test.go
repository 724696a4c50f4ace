package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/chain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/graph"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/ingest"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/packet"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/replay"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/review"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/anchor/rfc3161"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/httpx"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/signature"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewMemory()
	kr, err := signature.NewKeyring()
	require.NoError(t, err)
	ch := chain.New(st)
	app := &application{
		store:   st,
		ingest:  ingest.New(st),
		chain:   ch,
		replays: replay.New(st),
		reviews: review.New(st, ch),
		packets: packet.New(st, kr),
		graphs:  graph.NewBuilder(st),
		log:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	srv := httptest.NewServer(app.routes())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, tenant string, body any) (int, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, buf)
	require.NoError(t, err)
	if tenant != "" {
		req.Header.Set(httpx.TenantHeader, tenant)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestEndToEndEvidenceFlow(t *testing.T) {
	srv := newTestServer(t)

	portfolio := map[string]any{
		"kind": "portfolio",
		"name": "q3 book",
		"payload": map[string]any{
			"positions": []any{map[string]any{"ticker": "AAPL", "quantity": 100}},
		},
		"created_by": "ops@example.com",
	}

	// First ingest stores, second ingest with identical content dedups back to
	// the same id.
	code, out := call(t, srv, "POST", "/datasets/ingest", "acme", portfolio)
	require.Equal(t, 201, code)
	require.Equal(t, false, out["deduplicated"])
	firstID := out["dataset"].(map[string]any)["dataset_id"].(string)

	code, out = call(t, srv, "POST", "/datasets/ingest", "acme", portfolio)
	require.Equal(t, 200, code)
	require.Equal(t, true, out["deduplicated"])
	require.Equal(t, firstID, out["dataset"].(map[string]any)["dataset_id"])

	// Scenario create, run, replay: replay must land on the same output hash.
	code, out = call(t, srv, "POST", "/scenarios-v2", "acme", map[string]any{
		"name":       "200bp shock",
		"kind":       "stress",
		"payload":    map[string]any{"shock_pct": 0.2},
		"created_by": "analyst@example.com",
	})
	require.Equal(t, 201, code)
	scenarioID := out["scenario"].(map[string]any)["scenario_id"].(string)

	code, out = call(t, srv, "POST", "/scenarios-v2/"+scenarioID+"/run", "acme", map[string]any{
		"dataset_id":   firstID,
		"triggered_by": "analyst",
	})
	require.Equal(t, 201, code)
	runHash := out["run"].(map[string]any)["outputs_hash"].(string)
	require.Len(t, runHash, 64)
	require.Equal(t, firstID, out["run"].(map[string]any)["dataset_id"])

	code, out = call(t, srv, "POST", "/scenarios-v2/"+scenarioID+"/replay", "acme", map[string]any{
		"dataset_id":   firstID,
		"triggered_by": "analyst",
	})
	require.Equal(t, 201, code)
	require.Equal(t, runHash, out["run"].(map[string]any)["outputs_hash"])

	// Review lifecycle: create, submit, approve. The decision anchors an
	// attestation and the chain stays valid.
	code, out = call(t, srv, "POST", "/reviews", "acme", map[string]any{
		"subject_type": "scenario",
		"subject_id":   scenarioID,
		"requested_by": "maker@example.com",
	})
	require.Equal(t, 201, code)
	reviewID := out["review"].(map[string]any)["review_id"].(string)

	code, _ = call(t, srv, "POST", "/reviews/"+reviewID+"/submit", "acme", nil)
	require.Equal(t, 200, code)

	code, out = call(t, srv, "POST", "/reviews/"+reviewID+"/decide", "acme", map[string]any{
		"decision":   "APPROVED",
		"decided_by": "checker@example.com",
	})
	require.Equal(t, 200, code)
	decided := out["review"].(map[string]any)
	require.Equal(t, "APPROVED", decided["status"])
	require.Len(t, decided["decision_hash"].(string), 64)
	attestationID := decided["attestation_id"].(string)
	require.NotEmpty(t, attestationID)

	code, out = call(t, srv, "GET", "/attestations", "acme", nil)
	require.Equal(t, 200, code)
	atts := out["attestations"].([]any)
	require.Len(t, atts, 1)
	require.Equal(t, attestationID, atts[0].(map[string]any)["attestation_id"])

	code, out = call(t, srv, "POST", "/attestations/verify", "acme", nil)
	require.Equal(t, 200, code)
	require.Equal(t, true, out["valid"])

	// Decision packet: generate, sign, verify with the exact files, then with a
	// tampered file hash.
	code, out = call(t, srv, "POST", "/exports/decision-packet", "acme", map[string]any{
		"subject_type": "scenario",
		"subject_id":   scenarioID,
		"requested_by": "exporter@example.com",
	})
	require.Equal(t, 201, code)
	pkt := out["packet"].(map[string]any)
	packetID := pkt["packet_id"].(string)
	manifestHash := pkt["manifest_hash"].(string)
	files := map[string]string{}
	for k, v := range pkt["file_hashes"].(map[string]any) {
		files[k] = v.(string)
	}
	require.NotEmpty(t, files)

	code, out = call(t, srv, "POST", "/signatures/sign", "acme", map[string]any{
		"packet_id":     packetID,
		"manifest_hash": manifestHash,
		"signed_by":     "platform@example.com",
	})
	require.Equal(t, 201, code)
	require.Equal(t, "ed25519", out["signature"].(map[string]any)["algorithm"])

	code, out = call(t, srv, "POST", "/signatures/"+packetID+"/verify", "acme", map[string]any{
		"manifest_hash": manifestHash,
		"files":         files,
	})
	require.Equal(t, 200, code)
	require.Equal(t, true, out["verified"])

	tampered := map[string]string{}
	for k, v := range files {
		tampered[k] = v
	}
	for k := range tampered {
		tampered[k] = tampered[k][:63] + "0"
		if tampered[k] == files[k] {
			tampered[k] = tampered[k][:63] + "1"
		}
		break
	}
	code, out = call(t, srv, "POST", "/signatures/"+packetID+"/verify", "acme", map[string]any{
		"manifest_hash": manifestHash,
		"files":         tampered,
	})
	require.Equal(t, 200, code)
	require.Equal(t, false, out["verified"])

	// The evidence graph reflects everything the flow created.
	code, out = call(t, srv, "GET", "/evidence/graph/summary", "acme", nil)
	require.Equal(t, 200, code)
	counts := out["counts_by_type"].(map[string]any)
	require.Equal(t, float64(1), counts["dataset"])
	require.Equal(t, float64(1), counts["scenario"])
	require.Equal(t, float64(2), counts["run"])
	require.Equal(t, float64(1), counts["review"])
	require.Equal(t, float64(1), counts["attestation"])
	require.Len(t, out["summary_hash"].(string), 64)
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := newTestServer(t)
	code, out := call(t, srv, "GET", "/datasets", "", nil)
	require.Equal(t, 400, code)
	require.Equal(t, "TENANT_REQUIRED", out["error"].(map[string]any)["code"])
}

func TestCrossTenantAccessIsForbidden(t *testing.T) {
	srv := newTestServer(t)

	code, out := call(t, srv, "POST", "/scenarios-v2", "acme", map[string]any{
		"name":       "shock",
		"kind":       "stress",
		"payload":    map[string]any{"shock_pct": 0.1},
		"created_by": "analyst",
	})
	require.Equal(t, 201, code)
	scenarioID := out["scenario"].(map[string]any)["scenario_id"].(string)

	code, out = call(t, srv, "POST", "/scenarios-v2/"+scenarioID+"/run", "globex", map[string]any{"triggered_by": "intruder"})
	require.Equal(t, 403, code)
	require.Equal(t, "FORBIDDEN", out["error"].(map[string]any)["code"])
}

func TestValidationErrorsSurfaceAs400(t *testing.T) {
	srv := newTestServer(t)
	code, out := call(t, srv, "POST", "/datasets/ingest", "acme", map[string]any{
		"kind":       "portfolio",
		"name":       "empty book",
		"payload":    map[string]any{"positions": []any{}},
		"created_by": "ops",
	})
	require.Equal(t, 400, code)
	require.Equal(t, "VALIDATION_ERROR", out["error"].(map[string]any)["code"])
}

func TestAnchorWithoutTSAIsUnavailable(t *testing.T) {
	srv := newTestServer(t)
	code, out := call(t, srv, "POST", "/attestations/anchor", "acme", nil)
	require.Equal(t, 503, code)
	require.Equal(t, "ANCHOR_UNAVAILABLE", out["error"].(map[string]any)["code"])
}

func TestAnchorTimestampsChainHead(t *testing.T) {
	token := []byte{0x30, 0x03, 0x01, 0x01, 0xff}
	tsa := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/timestamp-query", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/timestamp-reply")
		_, _ = w.Write(token)
	}))
	defer tsa.Close()

	st := store.NewMemory()
	kr, err := signature.NewKeyring()
	require.NoError(t, err)
	ch := chain.New(st)
	app := &application{
		store:   st,
		ingest:  ingest.New(st),
		chain:   ch,
		replays: replay.New(st),
		reviews: review.New(st, ch),
		packets: packet.New(st, kr),
		graphs:  graph.NewBuilder(st),
		anchor:  rfc3161.NewClient(nil),
		tsaURL:  tsa.URL,
		log:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	srv := httptest.NewServer(app.routes())
	defer srv.Close()

	// Anchoring an empty chain is NOT_FOUND.
	code, _ := call(t, srv, "POST", "/attestations/anchor", "acme", nil)
	require.Equal(t, 404, code)

	head, err := ch.Append(context.Background(), "acme", map[string]any{"event": "test"})
	require.NoError(t, err)

	code, out := call(t, srv, "POST", "/attestations/anchor", "acme", nil)
	require.Equal(t, 200, code)
	require.Equal(t, head.Hash, out["anchored_hash"])
	require.Equal(t, base64.StdEncoding.EncodeToString(token), out["token"])
}

func TestInvalidTransitionSurfacesAs409(t *testing.T) {
	srv := newTestServer(t)

	code, out := call(t, srv, "POST", "/reviews", "acme", map[string]any{
		"subject_type": "dataset",
		"subject_id":   "ds_x",
		"requested_by": "maker",
	})
	require.Equal(t, 201, code)
	reviewID := out["review"].(map[string]any)["review_id"].(string)

	// Deciding a DRAFT review skips IN_REVIEW.
	code, out = call(t, srv, "POST", "/reviews/"+reviewID+"/decide", "acme", map[string]any{
		"decision":   "APPROVED",
		"decided_by": "checker",
	})
	require.Equal(t, 409, code)
	require.Equal(t, "INVALID_TRANSITION", out["error"].(map[string]any)["code"])
}
