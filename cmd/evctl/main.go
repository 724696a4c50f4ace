// evctl verifies exported evidence offline: an attestation chain dump or a
// decision packet (optionally with its signature), without talking to a
// server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/chain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/domain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/packet"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/signature"
)

func main() {
	root := &cli.Command{
		Name:  "evctl",
		Usage: "Offline verification of exported evidence",
		Commands: []*cli.Command{
			chainCommand(),
			packetCommand(),
		},
	}
	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func chainCommand() *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "Attestation chain operations",
		Commands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "Re-walk an exported chain and recompute every link hash",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "path to exported attestation array JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					raw, err := os.ReadFile(c.String("file"))
					if err != nil {
						return err
					}
					var seq []domain.Attestation
					if err := json.Unmarshal(raw, &seq); err != nil {
						return fmt.Errorf("parsing chain export: %w", err)
					}
					ok, badID, err := chain.Verify(seq)
					if err != nil {
						return err
					}
					return printResult(map[string]any{
						"valid":                 ok,
						"links":                 len(seq),
						"failed_attestation_id": badID,
					}, ok)
				},
			},
		},
	}
}

func packetCommand() *cli.Command {
	return &cli.Command{
		Name:  "packet",
		Usage: "Decision packet operations",
		Commands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "Recompute a packet manifest hash and check its signature",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "packet", Required: true, Usage: "path to packet JSON"},
					&cli.StringFlag{Name: "signature", Usage: "path to signature JSON (optional)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					raw, err := os.ReadFile(c.String("packet"))
					if err != nil {
						return err
					}
					var p domain.DecisionPacket
					if err := json.Unmarshal(raw, &p); err != nil {
						return fmt.Errorf("parsing packet: %w", err)
					}
					recomputed := packet.ManifestHash(p.SubjectType, p.SubjectID, p.FileHashes)
					valid := recomputed == p.ManifestHash

					out := map[string]any{
						"manifest_valid":    valid,
						"manifest_hash":     p.ManifestHash,
						"recomputed_hash":   recomputed,
						"signature_checked": false,
					}
					if sigPath := c.String("signature"); sigPath != "" && valid {
						sigRaw, err := os.ReadFile(sigPath)
						if err != nil {
							return err
						}
						var sig domain.Signature
						if err := json.Unmarshal(sigRaw, &sig); err != nil {
							return fmt.Errorf("parsing signature: %w", err)
						}
						out["signature_checked"] = true
						if err := signature.VerifyDigestHex(p.ManifestHash, sig.PublicKey, sig.Signature); err != nil {
							valid = false
							out["signature_valid"] = false
						} else {
							out["signature_valid"] = true
						}
					}
					return printResult(out, valid)
				},
			},
		},
	}
}

func printResult(v map[string]any, ok bool) error {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	if !ok {
		os.Exit(1)
	}
	return nil
}
