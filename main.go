package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	llmx "github.com/shoplight-ai/campaignchat/agent/llm"
	"github.com/shoplight-ai/campaignchat/agent/orchestrator"
	promptx "github.com/shoplight-ai/campaignchat/agent/prompt"
	registryx "github.com/shoplight-ai/campaignchat/agent/registry"
	"github.com/shoplight-ai/campaignchat/chat"
	"github.com/shoplight-ai/campaignchat/gateway"
	configx "github.com/shoplight-ai/campaignchat/pkg/config"
	logx "github.com/shoplight-ai/campaignchat/pkg/logger"
	_ "github.com/shoplight-ai/campaignchat/pkg/logger/autoload"
	openaix "github.com/shoplight-ai/campaignchat/pkg/openai"
	"github.com/shoplight-ai/campaignchat/server"
	"github.com/shoplight-ai/campaignchat/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logx.Component("main")

	dbCfg := configx.MustLoad[store.Config]("DB")
	if err := store.Migrate(*dbCfg); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	db, err := store.Open(ctx, *dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	openaiCfg := configx.MustLoad[openaix.Config]("OPENAI")
	client, err := openaix.NewClient(*openaiCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("openai client failed")
	}

	llmCfg := configx.MustLoad[llmx.Config]("LLM")
	reg, err := registryx.New(*llmCfg, promptx.LoadSet())
	if err != nil {
		log.Fatal().Err(err).Msg("agent registry failed")
	}

	runner := orchestrator.New(client, reg, gateway.NewStoreData(db))
	svc := chat.NewService(runner, store.NewThreadStore(db), store.NewCampaignStore(db))

	srvCfg := configx.MustLoad[server.Config]("SERVER")
	srv := server.New(*srvCfg, svc)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("shutdown complete")
}
