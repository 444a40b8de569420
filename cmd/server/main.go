package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"fableroom/internal/game"
	"fableroom/internal/narrative"
	"fableroom/internal/server"
	"fableroom/internal/store"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	var engine narrative.Engine = narrative.Offline{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := narrative.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("create narrative engine", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer gemini.Close()
		engine = gemini
	} else {
		logger.Warn("no gemini api key; running with fallback narration only")
	}

	machine := game.NewMachine(st, engine, logger, game.MachineConfig{
		TurnLimit: cfg.TurnTimeLimit,
	})

	srv := server.New(cfg, machine, st, logger)
	defer srv.Close()

	if err := srv.Run(); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func openStore(cfg server.Config) (game.Store, func(), error) {
	switch cfg.StoreBackend {
	case "sqlite":
		st, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "supabase":
		st, err := store.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable, cfg.SupabasePoll)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}
