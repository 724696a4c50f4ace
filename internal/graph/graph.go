// Package graph derives the evidence graph: one node per stored entity, one
// edge per known relationship. The graph is a pure projection over the entity
// store and attestation chain — never authored, never authoritative, always
// rebuildable.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/canonhash"
)

type Node struct {
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	Label    string `json:"label,omitempty"`
}

type Edge struct {
	EdgeID   string `json:"edge_id"`
	EdgeType string `json:"edge_type"`
	Src      string `json:"src"`
	Dst      string `json:"dst"`
}

type Graph struct {
	TenantID    string         `json:"tenant_id"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	NodeCounts  map[string]int `json:"counts_by_type"`
	EdgeCounts  map[string]int `json:"edge_counts_by_type"`
	SummaryHash string         `json:"summary_hash"`
}

const (
	EdgeCreatedFrom     = "created_from"
	EdgeUses            = "uses"
	EdgeProduces        = "produces"
	EdgeAttests         = "attests"
	EdgeApproves        = "approves"
	EdgeExports         = "exports"
	EdgeBelongsToTenant = "belongs_to_tenant"
)

type Builder struct{ st store.Store }

func NewBuilder(st store.Store) *Builder { return &Builder{st: st} }

// Build assembles the tenant's graph. Output ordering is deterministic (nodes
// by id, edges by id) so two builds over the same store state are identical.
func (b *Builder) Build(ctx context.Context, tenantID string) (Graph, error) {
	g := Graph{
		TenantID:   tenantID,
		NodeCounts: map[string]int{},
		EdgeCounts: map[string]int{},
	}
	add := func(n Node) {
		g.Nodes = append(g.Nodes, n)
		g.NodeCounts[n.NodeType]++
	}
	link := func(edgeType, src, dst string) {
		g.Edges = append(g.Edges, Edge{
			EdgeID:   edgeType + ":" + src + "->" + dst,
			EdgeType: edgeType,
			Src:      src,
			Dst:      dst,
		})
		g.EdgeCounts[edgeType]++
	}

	tenantNode := "tenant/" + tenantID
	add(Node{NodeID: tenantNode, NodeType: "tenant", Label: tenantID})

	datasets, err := b.st.ListDatasets(ctx, tenantID)
	if err != nil {
		return Graph{}, err
	}
	for _, d := range datasets {
		add(Node{NodeID: d.DatasetID, NodeType: string(domain.TypeDataset), Label: d.Name})
		link(EdgeBelongsToTenant, d.DatasetID, tenantNode)
	}

	scenarios, err := b.st.ListScenarios(ctx, tenantID)
	if err != nil {
		return Graph{}, err
	}
	for _, sc := range scenarios {
		add(Node{NodeID: sc.ScenarioID, NodeType: string(domain.TypeScenario), Label: sc.Name})
		link(EdgeBelongsToTenant, sc.ScenarioID, tenantNode)
	}

	runs, err := b.st.ListRuns(ctx, tenantID, "")
	if err != nil {
		return Graph{}, err
	}
	for _, r := range runs {
		add(Node{NodeID: r.RunID, NodeType: string(domain.TypeRun)})
		link(EdgeUses, r.RunID, r.ScenarioID)
		link(EdgeProduces, r.ScenarioID, r.RunID)
		if r.DatasetID != "" {
			link(EdgeCreatedFrom, r.RunID, r.DatasetID)
		}
	}

	reviews, err := b.st.ListReviews(ctx, tenantID)
	if err != nil {
		return Graph{}, err
	}
	for _, r := range reviews {
		add(Node{NodeID: r.ReviewID, NodeType: string(domain.TypeReview)})
		if r.Status == domain.ReviewApproved {
			link(EdgeApproves, r.ReviewID, r.SubjectID)
		}
	}

	attestations, err := b.st.ListAttestations(ctx, tenantID)
	if err != nil {
		return Graph{}, err
	}
	for _, a := range attestations {
		add(Node{NodeID: a.AttestationID, NodeType: string(domain.TypeAttestation)})
		if reviewID, ok := a.PayloadRef["review_id"].(string); ok && reviewID != "" {
			link(EdgeAttests, a.AttestationID, reviewID)
		}
	}

	packets, err := b.st.ListPackets(ctx, tenantID)
	if err != nil {
		return Graph{}, err
	}
	for _, p := range packets {
		add(Node{NodeID: p.PacketID, NodeType: string(domain.TypePacket)})
		link(EdgeExports, p.PacketID, p.SubjectID)
	}

	sigs, err := b.st.ListSignatures(ctx, tenantID)
	if err != nil {
		return Graph{}, err
	}
	for _, s := range sigs {
		add(Node{NodeID: s.SignatureID, NodeType: string(domain.TypeSignature)})
		link(EdgeAttests, s.SignatureID, s.PacketID)
	}

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].NodeID < g.Nodes[j].NodeID })
	sort.Slice(g.Edges, func(i, j int) bool { return g.Edges[i].EdgeID < g.Edges[j].EdgeID })

	g.SummaryHash, err = SummaryHash(g.NodeCounts, g.EdgeCounts)
	if err != nil {
		return Graph{}, err
	}
	return g, nil
}

// SummaryHash fingerprints the graph shape: canonical hash over type counts.
func SummaryHash(nodeCounts, edgeCounts map[string]int) (string, error) {
	h, err := canonhash.SumHex(map[string]any{
		"counts_by_type":      nodeCounts,
		"edge_counts_by_type": edgeCounts,
	})
	if err != nil {
		return "", fmt.Errorf("summary hash: %w", err)
	}
	return h, nil
}
