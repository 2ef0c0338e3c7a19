/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/rs/zerolog"
)

// Compute runs the full pipeline for one issue: normalize, merge,
// replay the state machines, attribute. tracked is an ordered triple:
// the in-progress label, the review label, the QA label (default
// doing, review, qa).
func Compute(issue domain.Issue, notes []domain.RawNote, labelEvents []domain.RawLabelEvent, target string, tracked []string, now time.Time, log zerolog.Logger) domain.TaskMetrics {
    m := domain.TaskMetrics{
        Ref:   issue.Ref(),
        Title: issue.Title,
        State: issue.State,
    }

    created, ok := parseTimeUTC(issue.CreatedAt)
    if !ok {
        log.Warn().Int64("project_id", issue.ProjectID).Int64("iid", issue.IID).
            Str("created_at", issue.CreatedAt).Msg("issue with unparsable created_at skipped")
        m.Error = "unparsable created_at"
        return m
    }
    end := now.UTC()
    if t, ok := parseTimeUTC(issue.ClosedAt); ok { end = t }
    b := Bounds{Created: created, End: end}

    noteEvs, labelEvs := Normalize(notes, labelEvents, log)
    timeline := Merge(noteEvs, labelEvs)

    states := StatePeriods(timeline, target, b)
    assigns := AssignmentPeriods(timeline, target, b)
    intervals := Attribute(timeline, states, assigns, tracked, target, b)
    m.Assignments = assigns

    if len(tracked) > 0 {
        m.CycleHistory = intervals[tracked[0]]
        m.CycleSeconds = sum(m.CycleHistory)
    }
    if len(tracked) > 1 {
        m.ReviewHistory = intervals[tracked[1]]
        m.ReviewSeconds = sum(m.ReviewHistory)
    }
    if len(tracked) > 2 {
        m.QAHistory = intervals[tracked[2]]
        m.QASeconds = sum(m.QAHistory)
    }
    return m
}

func sum(in []domain.LabelInterval) float64 {
    var s float64
    for _, iv := range in { s += iv.Seconds }
    return s
}
