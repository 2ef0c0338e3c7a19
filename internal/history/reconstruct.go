/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
)

// Bounds pins the reconstruction window for one issue. End is the
// close time for closed issues and the report time for open ones.
type Bounds struct {
    Created time.Time
    End     time.Time
}

// StatePeriods replays the open/closed machine over the merged
// timeline. The issue starts opened at creation; a close note closes
// it, a reopen note opens it again, duplicates are ignored. The result
// partitions [Created, End] exactly: no gaps, no overlaps.
func StatePeriods(timeline []Event, target string, b Bounds) []domain.StatePeriod {
    periods := make([]domain.StatePeriod, 0, 2)
    state := domain.StateOpened
    start := b.Created

    for _, ev := range timeline {
        if ev.Kind != KindNote { continue }
        switch ClassifyNote(ev.Body, target) {
        case NoteClosed:
            if state == domain.StateOpened {
                periods = append(periods, domain.StatePeriod{State: state, Start: start, End: ev.At})
                state = domain.StateClosed
                start = ev.At
            }
        case NoteReopened:
            if state == domain.StateClosed {
                periods = append(periods, domain.StatePeriod{State: state, Start: start, End: ev.At})
                state = domain.StateOpened
                start = ev.At
            }
        }
    }
    periods = append(periods, domain.StatePeriod{State: state, Start: start, End: b.End})
    return periods
}

// AssignmentPeriods replays the target-assignee machine. The target
// starts unassigned; a period opens only at an explicit assignment
// note and closes at the matching unassignment. An assignment still
// held at End closes there.
func AssignmentPeriods(timeline []Event, target string, b Bounds) []domain.AssignmentPeriod {
    periods := make([]domain.AssignmentPeriod, 0, 2)
    var start *time.Time

    for _, ev := range timeline {
        if ev.Kind != KindNote { continue }
        switch ClassifyNote(ev.Body, target) {
        case NoteAssigned:
            if start == nil {
                t := ev.At
                start = &t
            }
        case NoteUnassigned:
            if start != nil {
                periods = append(periods, domain.AssignmentPeriod{Start: *start, End: ev.At})
                start = nil
            }
        }
    }
    if start != nil {
        periods = append(periods, domain.AssignmentPeriod{Start: *start, End: b.End})
    }
    return periods
}
