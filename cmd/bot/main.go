/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/adapters/gitlab"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/adapters/openai"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/adapters/telegram"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    apphttp "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/http"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/jobs"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/logger"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/repo"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)
    {
        ctx2, cancel2 := context.WithTimeout(ctx, 20*time.Second)
        if err := repository.Init(ctx2); err != nil {
            log.Fatal().Err(err).Msg("schema init failed")
        }
        cancel2()
    }

    // Adapters
    gl := gitlab.NewClient(cfg, log)
    llm := openai.NewClient(cfg, log)
    tg := telegram.NewClient(cfg, log)

    // Services
    svc := services.New(cfg, gl, llm, repository, log)

    // HTTP server (Gin)
    handlers := apphttp.NewHandlers(cfg, log, svc, tg, repository)
    router := apphttp.NewRouter(cfg, log, handlers)

    // Register Telegram webhook only if PUBLIC_BASE_URL is HTTPS
    if cfg.TelegramWebhookSecret != "" && strings.HasPrefix(strings.ToLower(cfg.PublicBaseURL), "https://") {
        go func() {
            ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second); defer cancel()
            base := strings.TrimRight(cfg.PublicBaseURL, "/")
            webhookURL := base + "/telegram/webhook/" + cfg.TelegramWebhookSecret
            if err := tg.SetWebhook(ctx, webhookURL, cfg.TelegramWebhookSecret); err != nil {
                log.Error().Err(err).Str("url", webhookURL).Msg("telegram setWebhook failed")
            } else {
                log.Info().Str("url", webhookURL).Msg("telegram setWebhook ok")
            }
        }()
    }

    // Cron
    cron := jobs.NewCron(cfg, log, svc, tg, repository)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
