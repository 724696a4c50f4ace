package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/aaravjj2/RiskCanvas-sub002/internal/chain"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/graph"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/ingest"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/packet"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/replay"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/review"
	"github.com/aaravjj2/RiskCanvas-sub002/internal/store"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/anchor/rfc3161"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/db"
	"github.com/aaravjj2/RiskCanvas-sub002/pkg/signature"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	port := strings.TrimSpace(os.Getenv("SERVICE_PORT"))
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()
	var st store.Store
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		pool, err := db.Connect(ctx, dsn)
		if err != nil {
			log.Error("postgres connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := store.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		st = store.NewPostgres(pool)
		log.Info("using postgres store")
	} else {
		st = store.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	keyring, err := loadKeyring()
	if err != nil {
		log.Error("signing key init failed", "err", err)
		os.Exit(1)
	}

	// One chain service instance: its per-tenant locks are the single-writer
	// discipline for chain appends.
	ch := chain.New(st)
	app := &application{
		store:   st,
		ingest:  ingest.New(st),
		chain:   ch,
		replays: replay.New(st),
		reviews: review.New(st, ch),
		packets: packet.New(st, keyring),
		graphs:  graph.NewBuilder(st),
		anchor:  rfc3161.NewClient(nil),
		tsaURL:  strings.TrimSpace(os.Getenv("TSA_URL")),
		log:     log,
	}

	log.Info("listening", "port", port)
	if err := http.ListenAndServe(":"+port, app.routes()); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func loadKeyring() (*signature.Keyring, error) {
	if seed := strings.TrimSpace(os.Getenv("SIGNING_KEY_SEED")); seed != "" {
		return signature.KeyringFromSeedHex(seed)
	}
	return signature.NewKeyring()
}
