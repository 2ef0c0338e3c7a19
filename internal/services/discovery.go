/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "sync"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "golang.org/x/sync/errgroup"
)

// Workers lists active instance users ordered by username, for the
// workers menu.
func (s *Service) Workers(ctx context.Context) ([]domain.UserProfile, error) {
    users, err := s.gl.ActiveUsers(ctx)
    if err != nil { return nil, err }
    sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
    return users, nil
}

// IssuesTouchedBy finds every issue the user ever took part in. With
// scope "assigned" only currently assigned issues are considered (one
// cheap listing call); with scope "instance" every issue on the
// instance is scanned and filtered by its participant list. Results
// are sorted by (project, iid) so repeated runs line up.
func (s *Service) IssuesTouchedBy(ctx context.Context, username string, progress Progress) ([]domain.Issue, error) {
    report := func(msg string, p *int) {
        if progress != nil { progress(msg, p) }
    }

    if s.cfg.DiscoveryScope == "assigned" {
        issues, err := s.gl.AssignedIssues(ctx, username, func(page, total int) {
            report(fmt.Sprintf("Collecting issues, page %d", page), listingPercent(page, total))
        })
        if err != nil {
            report("Issue discovery failed", pct(-1))
            return nil, err
        }
        sortIssues(issues)
        return issues, nil
    }

    issues, err := s.gl.AllIssues(ctx, func(page, total int) {
        report(fmt.Sprintf("Scanning issues, page %d", page), listingPercent(page, total))
    })
    if err != nil {
        report("Issue discovery failed", pct(-1))
        return nil, err
    }
    if len(issues) == 0 { return nil, nil }

    var (
        mu      sync.Mutex
        touched []domain.Issue
        done    int
        failed  int
    )
    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(s.cfg.WorkersGitLab)
    for _, issue := range issues {
        issue := issue
        g.Go(func() error {
            parts, err := s.gl.Participants(gctx, issue.Ref())
            mu.Lock()
            defer mu.Unlock()
            done++
            if err != nil {
                // one bad issue must not sink the whole scan
                failed++
                s.log.Warn().Err(err).Int64("project_id", issue.ProjectID).Int64("iid", issue.IID).
                    Msg("participants fetch failed, issue skipped")
                return nil
            }
            for _, p := range parts {
                if strings.EqualFold(p.Username, username) {
                    touched = append(touched, issue)
                    break
                }
            }
            if done%25 == 0 || done == len(issues) {
                p := done * 99 / len(issues)
                report(fmt.Sprintf("Checking participants %d/%d", done, len(issues)), pct(p))
            }
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        report("Issue discovery failed", pct(-1))
        return nil, err
    }
    if failed == len(issues) {
        report("Issue discovery failed", pct(-1))
        return nil, fmt.Errorf("participants fetch failed for all %d issues", failed)
    }
    sortIssues(touched)
    return touched, nil
}

// listingPercent maps a page position to a percentage capped at 95 so
// the bar never claims completion before the per-issue work starts.
func listingPercent(page, total int) *int {
    if total <= 0 { return nil }
    p := page * 100 / total
    if p > 95 { p = 95 }
    return pct(p)
}

func sortIssues(issues []domain.Issue) {
    sort.Slice(issues, func(i, j int) bool {
        if issues[i].ProjectID != issues[j].ProjectID {
            return issues[i].ProjectID < issues[j].ProjectID
        }
        return issues[i].IID < issues[j].IID
    })
}
