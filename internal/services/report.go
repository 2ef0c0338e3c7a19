/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "encoding/json"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/history"
    "github.com/google/uuid"
    "golang.org/x/sync/errgroup"
)

// CycleTimeReport reconstructs per-issue cycle, review and QA time for
// one user across every issue they touched. A failure on a single
// issue is recorded on that row; the report proceeds.
func (s *Service) CycleTimeReport(ctx context.Context, username string, progress Progress) ([]domain.TaskMetrics, error) {
    report := func(msg string, p *int) {
        if progress != nil { progress(msg, p) }
    }

    if _, err := s.gl.UserByUsername(ctx, username); err != nil {
        report("Unknown user", pct(-1))
        return nil, err
    }

    issues, err := s.IssuesTouchedBy(ctx, username, progress)
    if err != nil { return nil, err }
    if len(issues) == 0 {
        report("No issues found for this user", pct(100))
        return nil, nil
    }

    now := time.Now().UTC()
    out := make([]domain.TaskMetrics, len(issues))
    var (
        mu   sync.Mutex
        done int
    )
    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(s.cfg.WorkersGitLab)
    for i, issue := range issues {
        i, issue := i, issue
        g.Go(func() error {
            m := s.computeIssue(gctx, issue, username, now)
            mu.Lock()
            out[i] = m
            done++
            if done%s.cfg.ProgressStep == 0 || done == len(issues) {
                p := done * 99 / len(issues)
                report(fmt.Sprintf("Analyzing issues %d/%d", done, len(issues)), pct(p))
            }
            mu.Unlock()
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        report("Report failed", pct(-1))
        return nil, err
    }

    // Participant does not mean assignee: drop candidates the user was
    // never actually assigned to, keeping errored rows visible.
    kept := out[:0]
    for _, m := range out {
        if m.Error != "" || len(m.Assignments) > 0 { kept = append(kept, m) }
    }
    report("Report ready", pct(100))
    return kept, nil
}

// computeIssue reconstructs one issue's metrics from whatever history
// it could fetch. A failed sub-fetch marks the row but the rest of the
// data still flows through the pipeline.
func (s *Service) computeIssue(ctx context.Context, issue domain.Issue, username string, now time.Time) domain.TaskMetrics {
    notes, notesErr := s.gl.Notes(ctx, issue.Ref())
    events, eventsErr := s.gl.LabelEvents(ctx, issue.Ref())
    m := history.Compute(issue, notes, events, username, s.cfg.TrackedLabels, now, s.log)
    if notesErr != nil {
        m.Error = fmt.Sprintf("notes: %v", notesErr)
    } else if eventsErr != nil {
        m.Error = fmt.Sprintf("label events: %v", eventsErr)
    }
    return m
}

// EstimateTimeReport collects GitLab time tracking numbers for the
// issues a user touched.
func (s *Service) EstimateTimeReport(ctx context.Context, username string, progress Progress) ([]domain.TaskEstimate, error) {
    report := func(msg string, p *int) {
        if progress != nil { progress(msg, p) }
    }

    issues, err := s.IssuesTouchedBy(ctx, username, progress)
    if err != nil { return nil, err }
    if len(issues) == 0 {
        report("No issues found for this user", pct(100))
        return nil, nil
    }

    out := make([]domain.TaskEstimate, len(issues))
    var (
        mu   sync.Mutex
        done int
    )
    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(s.cfg.WorkersGitLab)
    for i, issue := range issues {
        i, issue := i, issue
        g.Go(func() error {
            row := domain.TaskEstimate{Ref: issue.Ref(), Title: issue.Title, State: issue.State}
            ts, err := s.gl.TimeStats(gctx, issue.Ref())
            if err != nil {
                row.Error = err.Error()
            } else {
                row.EstimateSeconds = ts.TimeEstimate
                row.SpentSeconds = ts.TotalTimeSpent
                row.HumanEstimate = ts.HumanTimeEstimate
                row.HumanSpent = ts.HumanTotalTimeSpent
            }
            mu.Lock()
            out[i] = row
            done++
            if done%s.cfg.ProgressStep == 0 || done == len(issues) {
                p := done * 99 / len(issues)
                report(fmt.Sprintf("Fetching time stats %d/%d", done, len(issues)), pct(p))
            }
            mu.Unlock()
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        report("Report failed", pct(-1))
        return nil, err
    }
    report("Report ready", pct(100))
    return out, nil
}

// AllUserTasks lists the issues currently assigned to a user.
func (s *Service) AllUserTasks(ctx context.Context, username string) ([]domain.Issue, error) {
    issues, err := s.gl.AssignedIssues(ctx, username, nil)
    if err != nil { return nil, err }
    sortIssues(issues)
    return issues, nil
}

// FormatDuration renders seconds as "Nd Nh Nm Ns", omitting zero
// units; an all-zero duration still prints "0s".
func FormatDuration(seconds float64) string {
    total := int64(seconds)
    if total < 0 { total = 0 }
    d := total / 86400
    h := total % 86400 / 3600
    m := total % 3600 / 60
    sec := total % 60
    parts := make([]string, 0, 4)
    if d > 0 { parts = append(parts, fmt.Sprintf("%dd", d)) }
    if h > 0 { parts = append(parts, fmt.Sprintf("%dh", h)) }
    if m > 0 { parts = append(parts, fmt.Sprintf("%dm", m)) }
    if sec > 0 || len(parts) == 0 { parts = append(parts, fmt.Sprintf("%ds", sec)) }
    return strings.Join(parts, " ")
}

// CycleReportDocument serializes metrics as an indented JSON document
// suitable for a chat attachment. Each document carries its own id so
// reports can be told apart after download.
func CycleReportDocument(username string, metrics []domain.TaskMetrics) ([]byte, error) {
    var failed int
    for _, m := range metrics {
        if m.Error != "" { failed++ }
    }
    doc := struct {
        ReportID    string               `json:"report_id"`
        Username    string               `json:"username"`
        GeneratedAt time.Time            `json:"generated_at"`
        Summary     struct {
            TotalTasks       int `json:"total_tasks"`
            ProcessingErrors int `json:"processing_errors"`
        } `json:"summary"`
        Tasks []domain.TaskMetrics `json:"tasks"`
    }{ReportID: uuid.NewString(), Username: username, GeneratedAt: time.Now().UTC(), Tasks: metrics}
    doc.Summary.TotalTasks = len(metrics)
    doc.Summary.ProcessingErrors = failed
    return json.MarshalIndent(doc, "", "  ")
}

// CycleReportSummary builds a short chat text with per-issue rows and
// overall totals.
func CycleReportSummary(username string, metrics []domain.TaskMetrics) string {
    var b strings.Builder
    fmt.Fprintf(&b, "Cycle time for @%s\n", username)
    var failed int
    var cycle, review, qa float64
    for _, m := range metrics {
        if m.Error != "" {
            failed++
            continue
        }
        cycle += m.CycleSeconds
        review += m.ReviewSeconds
        qa += m.QASeconds
        if m.CycleSeconds == 0 && m.ReviewSeconds == 0 && m.QASeconds == 0 { continue }
        fmt.Fprintf(&b, "#%d %s — doing %s, review %s, qa %s\n",
            m.Ref.IssueIID, truncate(m.Title, 48),
            FormatDuration(m.CycleSeconds), FormatDuration(m.ReviewSeconds), FormatDuration(m.QASeconds))
    }
    fmt.Fprintf(&b, "Total: doing %s, review %s, qa %s\n",
        FormatDuration(cycle), FormatDuration(review), FormatDuration(qa))
    if failed > 0 {
        fmt.Fprintf(&b, "%d issue(s) skipped due to errors\n", failed)
    }
    return b.String()
}

func truncate(s string, n int) string {
    r := []rune(s)
    if len(r) <= n { return s }
    return string(r[:n-1]) + "…"
}

// RunWeeklyDigest builds the digest text for the configured usernames.
func (s *Service) RunWeeklyDigest(ctx context.Context) (string, error) {
    if len(s.cfg.DigestUsernames) == 0 { return "", nil }
    var b strings.Builder
    b.WriteString("Weekly cycle time digest\n\n")
    for _, username := range s.cfg.DigestUsernames {
        metrics, err := s.CycleTimeReport(ctx, username, nil)
        if err != nil {
            s.log.Error().Err(err).Str("username", username).Msg("digest report failed")
            fmt.Fprintf(&b, "@%s: report failed\n\n", username)
            continue
        }
        var cycle, review, qa float64
        for _, m := range metrics {
            cycle += m.CycleSeconds
            review += m.ReviewSeconds
            qa += m.QASeconds
        }
        fmt.Fprintf(&b, "@%s: doing %s, review %s, qa %s across %d issue(s)\n\n",
            username, FormatDuration(cycle), FormatDuration(review), FormatDuration(qa), len(metrics))
    }
    return strings.TrimSpace(b.String()), nil
}
