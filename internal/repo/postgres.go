/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
    "context"
    "errors"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// Init creates the schema if missing. Safe to run on every start.
func (r *Repository) Init(ctx context.Context) error {
    ddl := []string{
        `CREATE TABLE IF NOT EXISTS report_runs (
            id            BIGSERIAL PRIMARY KEY,
            kind          TEXT NOT NULL,
            username      TEXT NOT NULL DEFAULT '',
            chat_id       BIGINT NOT NULL DEFAULT 0,
            started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
            finished_at   TIMESTAMPTZ,
            issues_scanned INT NOT NULL DEFAULT 0,
            success       BOOLEAN NOT NULL DEFAULT false,
            error         TEXT NOT NULL DEFAULT ''
        )`,
        `CREATE TABLE IF NOT EXISTS chat_sessions (
            chat_id    BIGINT PRIMARY KEY,
            state      TEXT NOT NULL DEFAULT '',
            page       INT NOT NULL DEFAULT 0,
            username   TEXT NOT NULL DEFAULT '',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
    }
    for _, q := range ddl {
        if _, err := r.db.Pool.Exec(ctx, q); err != nil { return err }
    }
    return nil
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// Report runs

func (r *Repository) StartReportRun(ctx context.Context, kind, username string, chatID int64) (int64, error) {
    const q = `INSERT INTO report_runs(kind, username, chat_id, started_at, success)
        VALUES($1,$2,$3,now(),false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, kind, username, chatID).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishReportRun(ctx context.Context, id int64, issuesScanned int, success bool, errStr string) error {
    const q = `UPDATE report_runs SET finished_at=now(), issues_scanned=$2, success=$3, error=$4 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, issuesScanned, success, errStr)
    return err
}

type ReportRun struct {
    ID            int64      `json:"id"`
    Kind          string     `json:"kind"`
    Username      string     `json:"username"`
    ChatID        int64      `json:"chat_id"`
    StartedAt     time.Time  `json:"started_at"`
    FinishedAt    *time.Time `json:"finished_at"`
    IssuesScanned int        `json:"issues_scanned"`
    Success       bool       `json:"success"`
    Error         string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*ReportRun, error) {
    const q = `SELECT id, kind, username, chat_id, started_at, finished_at,
        coalesce(issues_scanned,0), coalesce(success,false), coalesce(error,'')
        FROM report_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    rr := &ReportRun{}
    if err := row.Scan(&rr.ID, &rr.Kind, &rr.Username, &rr.ChatID, &rr.StartedAt, &rr.FinishedAt,
        &rr.IssuesScanned, &rr.Success, &rr.Error); err != nil {
        return nil, err
    }
    return rr, nil
}

// Chat sessions: where each chat is in the menu flow, so a restart
// does not reset everyone mid-conversation.

type Session struct {
    ChatID   int64
    State    string
    Page     int
    Username string
}

func (r *Repository) SaveSession(ctx context.Context, s Session) error {
    const q = `INSERT INTO chat_sessions(chat_id, state, page, username, updated_at)
        VALUES($1,$2,$3,$4,now())
        ON CONFLICT(chat_id) DO UPDATE SET
            state=EXCLUDED.state, page=EXCLUDED.page, username=EXCLUDED.username, updated_at=now()`
    _, err := r.db.Pool.Exec(ctx, q, s.ChatID, s.State, s.Page, s.Username)
    return err
}

// GetSession returns the stored session or a zero one for an unknown chat.
func (r *Repository) GetSession(ctx context.Context, chatID int64) (Session, error) {
    const q = `SELECT chat_id, state, page, username FROM chat_sessions WHERE chat_id=$1`
    var s Session
    err := r.db.Pool.QueryRow(ctx, q, chatID).Scan(&s.ChatID, &s.State, &s.Page, &s.Username)
    if errors.Is(err, pgx.ErrNoRows) { return Session{ChatID: chatID}, nil }
    return s, err
}
