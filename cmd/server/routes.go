package main

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/chain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/graph"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/ingest"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/packet"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/replay"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/review"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/anchor/rfc3161"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/httpx"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/metrics"
)

type application struct {
	store   store.Store
	ingest  *ingest.Service
	chain   *chain.Service
	replays *replay.Engine
	reviews *review.Service
	packets *packet.Service
	graphs  *graph.Builder
	anchor  *rfc3161.Client
	tsaURL  string
	log     *slog.Logger
}

func (app *application) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(app.observe)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(requireTenant)

		api.Post("/datasets/ingest", app.handleDatasetIngest)
		api.Post("/datasets/validate", app.handleDatasetValidate)
		api.Get("/datasets", app.handleDatasetList)

		api.Post("/scenarios-v2", app.handleScenarioCreate)
		api.Get("/scenarios-v2", app.handleScenarioList)
		api.Post("/scenarios-v2/{scenario_id}/run", app.handleScenarioRun)
		api.Post("/scenarios-v2/{scenario_id}/replay", app.handleScenarioReplay)
		api.Get("/scenarios-v2/{scenario_id}/runs", app.handleScenarioRuns)

		api.Post("/reviews", app.handleReviewCreate)
		api.Get("/reviews", app.handleReviewList)
		api.Get("/reviews/{review_id}", app.handleReviewGet)
		api.Post("/reviews/{review_id}/submit", app.handleReviewSubmit)
		api.Post("/reviews/{review_id}/decide", app.handleReviewDecide)

		api.Get("/attestations", app.handleAttestationList)
		api.Post("/attestations/verify", app.handleChainVerify)
		api.Post("/attestations/anchor", app.handleChainAnchor)

		api.Post("/exports/decision-packet", app.handlePacketGenerate)
		api.Post("/signatures/sign", app.handlePacketSign)
		api.Post("/signatures/{packet_id}/verify", app.handlePacketVerify)

		api.Get("/evidence/graph", app.handleGraph)
		api.Get("/evidence/graph/summary", app.handleGraphSummary)
	})
	return r
}

func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpx.Tenant(r) == "" {
			httpx.WriteError(w, 400, "TENANT_REQUIRED", "missing "+httpx.TenantHeader+" header", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (app *application) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		app.log.Info("request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"tenant", httpx.Tenant(r),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// writeErr maps the error taxonomy onto HTTP codes. Determinism violations get
// their own code: they indicate a computation defect, not bad input.
func writeErr(w http.ResponseWriter, err error) {
	var det *domain.DeterminismError
	switch {
	case errors.As(err, &det):
		httpx.WriteError(w, 500, "DETERMINISM_VIOLATION", det.Error(), map[string]any{
			"scenario_id":   det.ScenarioID,
			"baseline_run":  det.BaselineRun,
			"expected_hash": det.ExpectedHash,
			"actual_hash":   det.ActualHash,
		})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, canonhash.ErrEncoding):
		httpx.WriteError(w, 400, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, 404, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		httpx.WriteError(w, 403, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		httpx.WriteError(w, 409, "INVALID_TRANSITION", err.Error(), nil)
	default:
		httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
	}
}

func (app *application) handleDatasetIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind      string         `json:"kind"`
		Name      string         `json:"name"`
		Payload   map[string]any `json:"payload"`
		CreatedBy string         `json:"created_by"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	d, dedup, err := app.ingest.IngestDataset(r.Context(), httpx.Tenant(r), domain.DatasetKind(req.Kind), req.Name, req.Payload, req.CreatedBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := 201
	if dedup {
		status = 200
	}
	httpx.WriteJSON(w, status, map[string]any{
		"request_id":   httpx.NewRequestID(),
		"valid":        true,
		"deduplicated": dedup,
		"dataset":      d,
	})
}

func (app *application) handleDatasetValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind    string         `json:"kind"`
		Name    string         `json:"name"`
		Payload map[string]any `json:"payload"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	errs := app.ingest.ValidateDataset(domain.DatasetKind(req.Kind), req.Payload)
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"valid":      len(errs) == 0,
		"errors":     errs,
	})
}

func (app *application) handleDatasetList(w http.ResponseWriter, r *http.Request) {
	datasets, err := app.store.ListDatasets(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "datasets": datasets})
}

func (app *application) handleScenarioCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string         `json:"name"`
		Kind      string         `json:"kind"`
		Payload   map[string]any `json:"payload"`
		CreatedBy string         `json:"created_by"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	sc, dedup, err := app.ingest.CreateScenario(r.Context(), httpx.Tenant(r), domain.ScenarioKind(req.Kind), req.Name, req.Payload, req.CreatedBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := 201
	if dedup {
		status = 200
	}
	httpx.WriteJSON(w, status, map[string]any{
		"request_id":   httpx.NewRequestID(),
		"deduplicated": dedup,
		"scenario":     sc,
	})
}

func (app *application) handleScenarioList(w http.ResponseWriter, r *http.Request) {
	scenarios, err := app.store.ListScenarios(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "scenarios": scenarios})
}

func (app *application) handleScenarioRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID   string `json:"dataset_id"`
		TriggeredBy string `json:"triggered_by"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	run, err := app.replays.Run(r.Context(), httpx.Tenant(r), chi.URLParam(r, "scenario_id"), req.DatasetID, req.TriggeredBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "run": run})
}

func (app *application) handleScenarioReplay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID   string `json:"dataset_id"`
		TriggeredBy string `json:"triggered_by"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	run, err := app.replays.Replay(r.Context(), httpx.Tenant(r), chi.URLParam(r, "scenario_id"), req.DatasetID, req.TriggeredBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "run": run})
}

func (app *application) handleScenarioRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := app.store.ListRuns(r.Context(), httpx.Tenant(r), chi.URLParam(r, "scenario_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "runs": runs})
}

func (app *application) handleReviewCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectType string `json:"subject_type"`
		SubjectID   string `json:"subject_id"`
		RequestedBy string `json:"requested_by"`
		Notes       string `json:"notes"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	rv, err := app.reviews.Create(r.Context(), httpx.Tenant(r), req.SubjectType, req.SubjectID, req.RequestedBy, req.Notes)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "review": rv})
}

func (app *application) handleReviewList(w http.ResponseWriter, r *http.Request) {
	reviews, err := app.store.ListReviews(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "reviews": reviews})
}

func (app *application) handleReviewGet(w http.ResponseWriter, r *http.Request) {
	rv, err := app.store.GetReview(r.Context(), httpx.Tenant(r), chi.URLParam(r, "review_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "review": rv})
}

func (app *application) handleReviewSubmit(w http.ResponseWriter, r *http.Request) {
	rv, err := app.reviews.Submit(r.Context(), httpx.Tenant(r), chi.URLParam(r, "review_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "review": rv})
}

func (app *application) handleReviewDecide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision  string `json:"decision"`
		DecidedBy string `json:"decided_by"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	rv, err := app.reviews.Decide(r.Context(), httpx.Tenant(r), chi.URLParam(r, "review_id"), domain.ReviewStatus(req.Decision), req.DecidedBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "review": rv})
}

func (app *application) handleAttestationList(w http.ResponseWriter, r *http.Request) {
	attestations, err := app.store.ListAttestations(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "attestations": attestations})
}

func (app *application) handleChainVerify(w http.ResponseWriter, r *http.Request) {
	ok, badID, err := app.chain.VerifyChain(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := map[string]any{"request_id": httpx.NewRequestID(), "valid": ok}
	if badID != "" {
		resp["failed_attestation_id"] = badID
	}
	httpx.WriteJSON(w, 200, resp)
}

// handleChainAnchor timestamps the current chain head with the configured
// RFC 3161 TSA. The token binds the head hash, and through it every prior
// link, to an external clock.
func (app *application) handleChainAnchor(w http.ResponseWriter, r *http.Request) {
	if app.tsaURL == "" {
		httpx.WriteError(w, 503, "ANCHOR_UNAVAILABLE", "no TSA_URL configured", nil)
		return
	}
	head, err := app.store.ChainHead(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	reqDER, err := rfc3161.BuildRequestFromHashHex(head.Hash, "")
	if err != nil {
		writeErr(w, err)
		return
	}
	token, contentType, err := app.anchor.RequestToken(r.Context(), app.tsaURL, reqDER)
	if err != nil {
		httpx.WriteError(w, 502, "ANCHOR_FAILED", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":    httpx.NewRequestID(),
		"anchored_hash": head.Hash,
		"seq":           head.Seq,
		"token":         base64.StdEncoding.EncodeToString(token),
		"content_type":  contentType,
	})
}

func (app *application) handlePacketGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectType string `json:"subject_type"`
		SubjectID   string `json:"subject_id"`
		RequestedBy string `json:"requested_by"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	p, err := app.packets.Generate(r.Context(), httpx.Tenant(r), req.SubjectType, req.SubjectID, req.RequestedBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "packet": p})
}

func (app *application) handlePacketSign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PacketID     string `json:"packet_id"`
		ManifestHash string `json:"manifest_hash"`
		SignedBy     string `json:"signed_by"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	sig, err := app.packets.Sign(r.Context(), httpx.Tenant(r), req.PacketID, req.ManifestHash, req.SignedBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "signature": sig})
}

func (app *application) handlePacketVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ManifestHash string            `json:"manifest_hash"`
		Files        map[string]string `json:"files"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	verified, err := app.packets.Verify(r.Context(), httpx.Tenant(r), chi.URLParam(r, "packet_id"), req.ManifestHash, req.Files)
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "verified": verified})
}

func (app *application) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := app.graphs.Build(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":   httpx.NewRequestID(),
		"nodes":        g.Nodes,
		"edges":        g.Edges,
		"summary_hash": g.SummaryHash,
	})
}

func (app *application) handleGraphSummary(w http.ResponseWriter, r *http.Request) {
	g, err := app.graphs.Build(r.Context(), httpx.Tenant(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":          httpx.NewRequestID(),
		"counts_by_type":      g.NodeCounts,
		"edge_counts_by_type": g.EdgeCounts,
		"summary_hash":        g.SummaryHash,
	})
}
