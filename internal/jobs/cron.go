/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface {
    RunWeeklyDigest(ctx context.Context) (string, error)
}

type notifier interface {
    SendMessage(ctx context.Context, chatID int64, text string) error
}

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    tg   notifier
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, tg notifier, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, tg: tg, repo: r, c: c}
    _, _ = c.AddFunc(cfg.DigestCron, cr.weekly)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) weekly() {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute); defer cancel()
    const lockKey int64 = 424242
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
    defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    cr.log.Info().Msg("cron: weekly digest")
    text, err := cr.svc.RunWeeklyDigest(ctx)
    if err != nil { cr.log.Error().Err(err).Msg("cron: digest failed"); return }
    if text == "" { return }
    for _, chatID := range cr.cfg.TelegramChatIDs {
        if err := cr.tg.SendMessage(ctx, chatID, text); err != nil {
            cr.log.Error().Err(err).Int64("chat_id", chatID).Msg("cron: digest send failed")
        }
    }
}
