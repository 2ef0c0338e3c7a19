/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "regexp"
    "strings"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/repo"
    "github.com/rs/zerolog"
)

// GitLabClient is the slice of the GitLab API this service consumes.
type GitLabClient interface {
    ActiveUsers(ctx context.Context) ([]domain.UserProfile, error)
    UserByUsername(ctx context.Context, username string) (domain.UserProfile, error)
    AllIssues(ctx context.Context, onPage func(page, total int)) ([]domain.Issue, error)
    AssignedIssues(ctx context.Context, username string, onPage func(page, total int)) ([]domain.Issue, error)
    Notes(ctx context.Context, ref domain.IssueRef) ([]domain.RawNote, error)
    LabelEvents(ctx context.Context, ref domain.IssueRef) ([]domain.RawLabelEvent, error)
    Participants(ctx context.Context, ref domain.IssueRef) ([]domain.UserRef, error)
    TimeStats(ctx context.Context, ref domain.IssueRef) (domain.TimeStats, error)
    ProjectLabels(ctx context.Context, projectID int64) ([]domain.Label, error)
    CreateIssue(ctx context.Context, draft domain.TaskDraft, assigneeID int64) (domain.Issue, error)
}

// LLMClient is the slice of the language model API this service consumes.
type LLMClient interface {
    Complete(ctx context.Context, system, user string) (string, error)
    Transcribe(ctx context.Context, filename string, data []byte) (string, error)
}

// Progress reports long-operation status back to the chat. percent is
// nil when there is nothing meaningful to show yet; -1 signals that
// the operation failed and the message is final.
type Progress func(msg string, percent *int)

func pct(n int) *int { return &n }

type Service struct {
    cfg  config.Config
    gl   GitLabClient
    llm  LLMClient
    repo *repo.Repository
    log  zerolog.Logger
}

func New(cfg config.Config, gl GitLabClient, llm LLMClient, r *repo.Repository, log zerolog.Logger) *Service {
    return &Service{cfg: cfg, gl: gl, llm: llm, repo: r, log: log}
}

const taskExtractionPrompt = `You turn a short free-form request into a tracker task.
Answer with JSON only, no prose, no code fences, with exactly these keys:
{"project_id": <int>, "title": "<short imperative title>", "description": "<full description>", "assignee_name": "<name or username mentioned, empty if none>", "labels": ["<zero or more labels from the allowed list>"]}
If the request does not name a project, use project_id %d.
Allowed labels: %s. Use only labels from that list, or none.`

// CreateTaskFromText extracts a task draft from a free-form message
// and opens the issue in GitLab.
func (s *Service) CreateTaskFromText(ctx context.Context, text string) (domain.Issue, error) {
    if s.llm == nil { return domain.Issue{}, errors.New("llm is not configured") }
    if strings.TrimSpace(text) == "" { return domain.Issue{}, errors.New("empty task text") }

    allowed := s.projectLabelNames(ctx, s.cfg.DefaultProjectID)
    system := fmt.Sprintf(taskExtractionPrompt, s.cfg.DefaultProjectID, strings.Join(allowed, ", "))
    raw, err := s.llm.Complete(ctx, system, redact(text))
    if err != nil { return domain.Issue{}, err }

    draft, err := parseDraft(raw)
    if err != nil {
        s.log.Warn().Err(err).Str("raw", raw).Msg("llm returned unparsable draft")
        return domain.Issue{}, err
    }
    if draft.ProjectID <= 0 { draft.ProjectID = s.cfg.DefaultProjectID }
    draft.Labels = filterLabels(draft.Labels, allowed)

    var assigneeID int64
    if draft.AssigneeName != "" {
        if u, err := s.resolveAssignee(ctx, draft.AssigneeName); err == nil {
            assigneeID = u.ID
        } else {
            s.log.Warn().Err(err).Str("name", draft.AssigneeName).Msg("assignee not resolved, creating unassigned")
        }
    }
    return s.gl.CreateIssue(ctx, draft, assigneeID)
}

// CreateTaskFromVoice transcribes a voice note and then runs the text path.
func (s *Service) CreateTaskFromVoice(ctx context.Context, filename string, data []byte) (domain.Issue, string, error) {
    if s.llm == nil { return domain.Issue{}, "", errors.New("llm is not configured") }
    text, err := s.llm.Transcribe(ctx, filename, data)
    if err != nil { return domain.Issue{}, "", err }
    issue, err := s.CreateTaskFromText(ctx, text)
    return issue, text, err
}

// parseDraft decodes the model answer, tolerating markdown code fences
// around the JSON.
func parseDraft(raw string) (domain.TaskDraft, error) {
    var draft domain.TaskDraft
    cleaned := stripFences(raw)
    if err := json.Unmarshal([]byte(cleaned), &draft); err != nil {
        return draft, fmt.Errorf("task draft parse: %w", err)
    }
    if strings.TrimSpace(draft.Title) == "" {
        return draft, errors.New("task draft without title")
    }
    return draft, nil
}

func stripFences(s string) string {
    s = strings.TrimSpace(s)
    if strings.HasPrefix(s, "```") {
        s = strings.TrimPrefix(s, "```json")
        s = strings.TrimPrefix(s, "```")
        if i := strings.LastIndex(s, "```"); i >= 0 { s = s[:i] }
    }
    return strings.TrimSpace(s)
}

// projectLabelNames lists the labels defined on a project; on error
// the assistant simply gets no label vocabulary.
func (s *Service) projectLabelNames(ctx context.Context, projectID int64) []string {
    if projectID <= 0 { return nil }
    labels, err := s.gl.ProjectLabels(ctx, projectID)
    if err != nil {
        s.log.Warn().Err(err).Int64("project_id", projectID).Msg("project labels fetch failed")
        return nil
    }
    names := make([]string, 0, len(labels))
    for _, l := range labels { names = append(names, l.Name) }
    return names
}

// filterLabels keeps only labels the project actually defines; the
// model occasionally invents new ones.
func filterLabels(proposed, allowed []string) []string {
    if len(proposed) == 0 || len(allowed) == 0 { return nil }
    out := make([]string, 0, len(proposed))
    for _, p := range proposed {
        for _, a := range allowed {
            if strings.EqualFold(p, a) { out = append(out, a); break }
        }
    }
    return out
}

// resolveAssignee matches a human-written name against active users by
// username first, then by display name.
func (s *Service) resolveAssignee(ctx context.Context, name string) (domain.UserProfile, error) {
    name = strings.TrimSpace(strings.TrimPrefix(name, "@"))
    users, err := s.gl.ActiveUsers(ctx)
    if err != nil { return domain.UserProfile{}, err }
    for _, u := range users {
        if strings.EqualFold(u.Username, name) { return u, nil }
    }
    for _, u := range users {
        if strings.EqualFold(u.Name, name) { return u, nil }
    }
    lower := strings.ToLower(name)
    for _, u := range users {
        if strings.Contains(strings.ToLower(u.Name), lower) { return u, nil }
    }
    return domain.UserProfile{}, fmt.Errorf("no active user matches %q", name)
}

var (
    reEmail = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
    reToken = regexp.MustCompile(`\b(?:glpat|xox[a-z]|ghp|sk)-[A-Za-z0-9_\-]{10,}\b`)
)

// redact strips emails and credential-looking strings before the text
// leaves for a third-party model.
func redact(s string) string {
    s = reEmail.ReplaceAllString(s, "[email]")
    s = reToken.ReplaceAllString(s, "[token]")
    return s
}
