/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/repo"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/services"
    "github.com/rs/zerolog"
)

const workersPerPage = 10

// menu button labels
const (
    btnWorkers      = "Workers"
    btnNext         = "Next"
    btnPrevious     = "Previous"
    btnBack         = "Back"
    btnAllUserTasks = "All user tasks"
    btnEstimateTime = "Estimate Time"
    btnCycleTime    = "Cycle Time"
)

// session states
const (
    stateMain    = ""
    stateWorkers = "workers"
    stateWorker  = "worker"
)

type service interface {
    Workers(ctx context.Context) ([]domain.UserProfile, error)
    CycleTimeReport(ctx context.Context, username string, progress services.Progress) ([]domain.TaskMetrics, error)
    EstimateTimeReport(ctx context.Context, username string, progress services.Progress) ([]domain.TaskEstimate, error)
    AllUserTasks(ctx context.Context, username string) ([]domain.Issue, error)
    CreateTaskFromText(ctx context.Context, text string) (domain.Issue, error)
    CreateTaskFromVoice(ctx context.Context, filename string, data []byte) (domain.Issue, string, error)
    RunWeeklyDigest(ctx context.Context) (string, error)
}

type notifier interface {
    SendMessage(ctx context.Context, chatID int64, text string) error
    SendMessageID(ctx context.Context, chatID int64, text string) (int64, error)
    EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
    SendKeyboard(ctx context.Context, chatID int64, text string, rows [][]string) error
    SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
    FilePath(ctx context.Context, fileID string) (string, error)
    DownloadFile(ctx context.Context, filePath string) ([]byte, error)
}

type sessions interface {
    SaveSession(ctx context.Context, s repo.Session) error
    GetSession(ctx context.Context, chatID int64) (repo.Session, error)
    GetLastRun(ctx context.Context) (*repo.ReportRun, error)
    StartReportRun(ctx context.Context, kind, username string, chatID int64) (int64, error)
    FinishReportRun(ctx context.Context, id int64, issuesScanned int, success bool, errStr string) error
}

type Handlers struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    tg   notifier
    repo sessions
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service, tg notifier, r sessions) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc, tg: tg, repo: r}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.repo.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunDigestNow(c *gin.Context) {
    // Run in background detached from the HTTP request to avoid context cancellation
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
        defer cancel()
        text, err := h.svc.RunWeeklyDigest(ctx)
        if err != nil || text == "" { return }
        for _, chatID := range h.cfg.TelegramChatIDs {
            _ = h.tg.SendMessage(ctx, chatID, text)
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type update struct {
    Message *struct {
        Chat struct {
            ID int64 `json:"id"`
        } `json:"chat"`
        From struct {
            Username string `json:"username"`
        } `json:"from"`
        Text  string `json:"text"`
        Voice *struct {
            FileID string `json:"file_id"`
        } `json:"voice"`
    } `json:"message"`
}

func (h *Handlers) TelegramWebhook(c *gin.Context) {
    headerSecret := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
    pathSecret := c.Param("secret")
    // Accept either header secret (preferred) or path secret
    if headerSecret != h.cfg.TelegramWebhookSecret && pathSecret != h.cfg.TelegramWebhookSecret {
        c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
        return
    }

    var upd update
    if err := c.ShouldBindJSON(&upd); err != nil || upd.Message == nil {
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }
    chatID := upd.Message.Chat.ID
    if !h.chatAllowed(chatID) {
        h.log.Warn().Int64("chat_id", chatID).Msg("update from unconfigured chat dropped")
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }

    if upd.Message.Voice != nil {
        go h.handleVoice(chatID, upd.Message.Voice.FileID)
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }
    h.route(c.Request.Context(), chatID, strings.TrimSpace(upd.Message.Text))
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) chatAllowed(chatID int64) bool {
    if len(h.cfg.TelegramChatIDs) == 0 { return true }
    for _, id := range h.cfg.TelegramChatIDs {
        if id == chatID { return true }
    }
    return false
}

func (h *Handlers) route(ctx context.Context, chatID int64, text string) {
    sess, err := h.repo.GetSession(ctx, chatID)
    if err != nil {
        h.log.Error().Err(err).Int64("chat_id", chatID).Msg("session load failed")
        sess = repo.Session{ChatID: chatID}
    }

    switch {
    case text == "/start" || text == "/help":
        h.showMainMenu(ctx, chatID)
    case text == btnWorkers:
        h.showWorkers(ctx, chatID, 0)
    case text == btnNext && sess.State == stateWorkers:
        h.showWorkers(ctx, chatID, sess.Page+1)
    case text == btnPrevious && sess.State == stateWorkers:
        h.showWorkers(ctx, chatID, sess.Page-1)
    case text == btnBack:
        if sess.State == stateWorker {
            h.showWorkers(ctx, chatID, sess.Page)
        } else {
            h.showMainMenu(ctx, chatID)
        }
    case text == btnCycleTime && sess.Username != "":
        go h.runCycleReport(chatID, sess.Username)
    case text == btnEstimateTime && sess.Username != "":
        go h.runEstimateReport(chatID, sess.Username)
    case text == btnAllUserTasks && sess.Username != "":
        go h.sendAllTasks(chatID, sess.Username)
    case sess.State == stateWorkers && text != "":
        h.showWorker(ctx, chatID, sess, text)
    case text != "" && !strings.HasPrefix(text, "/"):
        go h.createTask(chatID, text)
    default:
        h.showMainMenu(ctx, chatID)
    }
}

func (h *Handlers) showMainMenu(ctx context.Context, chatID int64) {
    _ = h.repo.SaveSession(ctx, repo.Session{ChatID: chatID, State: stateMain})
    help := "Pick Workers to browse per-user reports, send a text or voice message to create a task."
    if err := h.tg.SendKeyboard(ctx, chatID, help, [][]string{{btnWorkers}}); err != nil {
        h.log.Error().Err(err).Int64("chat_id", chatID).Msg("main menu send failed")
    }
}

func (h *Handlers) showWorkers(ctx context.Context, chatID int64, page int) {
    users, err := h.svc.Workers(ctx)
    if err != nil {
        h.log.Error().Err(err).Msg("workers list failed")
        _ = h.tg.SendMessage(ctx, chatID, "Cannot list workers right now.")
        return
    }
    if len(users) == 0 {
        _ = h.tg.SendMessage(ctx, chatID, "No active workers found.")
        return
    }
    lastPage := (len(users) - 1) / workersPerPage
    if page < 0 { page = 0 }
    if page > lastPage { page = lastPage }

    start := page * workersPerPage
    end := start + workersPerPage
    if end > len(users) { end = len(users) }

    rows := make([][]string, 0, workersPerPage+2)
    for _, u := range users[start:end] {
        rows = append(rows, []string{u.Username})
    }
    nav := make([]string, 0, 2)
    if page > 0 { nav = append(nav, btnPrevious) }
    if page < lastPage { nav = append(nav, btnNext) }
    if len(nav) > 0 { rows = append(rows, nav) }
    rows = append(rows, []string{btnBack})

    _ = h.repo.SaveSession(ctx, repo.Session{ChatID: chatID, State: stateWorkers, Page: page})
    text := fmt.Sprintf("Workers %d-%d of %d. Pick one:", start+1, end, len(users))
    if err := h.tg.SendKeyboard(ctx, chatID, text, rows); err != nil {
        h.log.Error().Err(err).Int64("chat_id", chatID).Msg("workers menu send failed")
    }
}

func (h *Handlers) showWorker(ctx context.Context, chatID int64, sess repo.Session, username string) {
    users, err := h.svc.Workers(ctx)
    if err != nil {
        _ = h.tg.SendMessage(ctx, chatID, "Cannot open this worker right now.")
        return
    }
    known := false
    for _, u := range users {
        if u.Username == username { known = true; break }
    }
    if !known {
        _ = h.tg.SendMessage(ctx, chatID, fmt.Sprintf("Unknown worker %q, pick one from the list.", username))
        return
    }
    _ = h.repo.SaveSession(ctx, repo.Session{ChatID: chatID, State: stateWorker, Page: sess.Page, Username: username})
    rows := [][]string{
        {btnAllUserTasks},
        {btnEstimateTime},
        {btnCycleTime},
        {btnBack},
    }
    if err := h.tg.SendKeyboard(ctx, chatID, fmt.Sprintf("Worker @%s:", username), rows); err != nil {
        h.log.Error().Err(err).Int64("chat_id", chatID).Msg("worker menu send failed")
    }
}

// progressEditor sends one status message and rewrites it in place as
// the report advances.
func (h *Handlers) progressEditor(ctx context.Context, chatID int64, initial string) services.Progress {
    msgID, err := h.tg.SendMessageID(ctx, chatID, initial)
    if err != nil {
        h.log.Error().Err(err).Int64("chat_id", chatID).Msg("progress message send failed")
        return func(string, *int) {}
    }
    return func(msg string, percent *int) {
        text := msg
        if percent != nil {
            if *percent == -1 {
                text = msg + " ❌"
            } else {
                text = fmt.Sprintf("%s (%d%%)", msg, *percent)
            }
        }
        if err := h.tg.EditMessageText(ctx, chatID, msgID, text); err != nil {
            // edits of identical text come back as 400; not worth logging
            h.log.Debug().Err(err).Msg("progress edit failed")
        }
    }
}

func (h *Handlers) runCycleReport(chatID int64, username string) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
    defer cancel()

    runID, err := h.repo.StartReportRun(ctx, "cycle_time", username, chatID)
    if err != nil { h.log.Error().Err(err).Msg("report run insert failed") }

    progress := h.progressEditor(ctx, chatID, fmt.Sprintf("Building cycle time report for @%s...", username))
    metrics, err := h.svc.CycleTimeReport(ctx, username, progress)
    if err != nil {
        h.log.Error().Err(err).Str("username", username).Msg("cycle report failed")
        if runID != 0 { _ = h.repo.FinishReportRun(ctx, runID, 0, false, err.Error()) }
        return
    }
    if runID != 0 { _ = h.repo.FinishReportRun(ctx, runID, len(metrics), true, "") }
    if len(metrics) == 0 {
        _ = h.tg.SendMessage(ctx, chatID, fmt.Sprintf("No issues found for @%s.", username))
        return
    }
    doc, err := services.CycleReportDocument(username, metrics)
    if err != nil {
        h.log.Error().Err(err).Msg("report document marshal failed")
        return
    }
    filename := fmt.Sprintf("cycle_time_%s.json", username)
    if err := h.tg.SendDocument(ctx, chatID, filename, doc, fmt.Sprintf("Cycle time report for @%s", username)); err != nil {
        h.log.Error().Err(err).Msg("report document send failed")
    }
    _ = h.tg.SendMessage(ctx, chatID, services.CycleReportSummary(username, metrics))
}

func (h *Handlers) runEstimateReport(chatID int64, username string) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
    defer cancel()

    progress := h.progressEditor(ctx, chatID, fmt.Sprintf("Collecting time stats for @%s...", username))
    rows, err := h.svc.EstimateTimeReport(ctx, username, progress)
    if err != nil {
        h.log.Error().Err(err).Str("username", username).Msg("estimate report failed")
        return
    }
    if len(rows) == 0 {
        _ = h.tg.SendMessage(ctx, chatID, fmt.Sprintf("No issues found for @%s.", username))
        return
    }
    var b strings.Builder
    fmt.Fprintf(&b, "Time tracking for @%s\n", username)
    for _, r := range rows {
        if r.Error != "" { continue }
        if r.EstimateSeconds == 0 && r.SpentSeconds == 0 { continue }
        fmt.Fprintf(&b, "#%d %s — estimate %s, spent %s\n",
            r.Ref.IssueIID, r.Title,
            services.FormatDuration(float64(r.EstimateSeconds)), services.FormatDuration(float64(r.SpentSeconds)))
    }
    _ = h.tg.SendMessage(ctx, chatID, b.String())
}

func (h *Handlers) sendAllTasks(chatID int64, username string) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
    defer cancel()

    issues, err := h.svc.AllUserTasks(ctx, username)
    if err != nil {
        h.log.Error().Err(err).Str("username", username).Msg("task list failed")
        _ = h.tg.SendMessage(ctx, chatID, "Cannot list tasks right now.")
        return
    }
    if len(issues) == 0 {
        _ = h.tg.SendMessage(ctx, chatID, fmt.Sprintf("@%s has no assigned tasks.", username))
        return
    }
    var b strings.Builder
    fmt.Fprintf(&b, "Tasks assigned to @%s\n", username)
    for _, i := range issues {
        fmt.Fprintf(&b, "#%d [%s] %s\n", i.IID, i.State, i.Title)
    }
    _ = h.tg.SendMessage(ctx, chatID, b.String())
}

func (h *Handlers) createTask(chatID int64, text string) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
    defer cancel()

    issue, err := h.svc.CreateTaskFromText(ctx, text)
    if err != nil {
        h.log.Error().Err(err).Msg("task creation failed")
        _ = h.tg.SendMessage(ctx, chatID, "Could not turn that into a task, try rephrasing.")
        return
    }
    _ = h.tg.SendMessage(ctx, chatID, fmt.Sprintf("Created issue #%d: %s\n%s", issue.IID, issue.Title, issue.WebURL))
}

func (h *Handlers) handleVoice(chatID int64, fileID string) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
    defer cancel()

    path, err := h.tg.FilePath(ctx, fileID)
    if err != nil {
        h.log.Error().Err(err).Msg("voice file resolve failed")
        _ = h.tg.SendMessage(ctx, chatID, "Could not download the voice note.")
        return
    }
    data, err := h.tg.DownloadFile(ctx, path)
    if err != nil {
        h.log.Error().Err(err).Msg("voice file download failed")
        _ = h.tg.SendMessage(ctx, chatID, "Could not download the voice note.")
        return
    }
    issue, transcript, err := h.svc.CreateTaskFromVoice(ctx, "voice.ogg", data)
    if err != nil {
        h.log.Error().Err(err).Msg("voice task creation failed")
        _ = h.tg.SendMessage(ctx, chatID, "Could not turn the voice note into a task.")
        return
    }
    _ = h.tg.SendMessage(ctx, chatID,
        fmt.Sprintf("Heard: %q\nCreated issue #%d: %s\n%s", transcript, issue.IID, issue.Title, issue.WebURL))
}
