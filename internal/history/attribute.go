/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "strings"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
)

// attributor accrues time for a tracked label only while all three
// predicates hold at once: the label is applied, the issue is open,
// and the target user is the assignee. Accrual is lazy: if a label is
// applied while a predicate is unsatisfied, counting starts at the
// first later event that satisfies them all, not retroactively.
type attributor struct {
    states  []domain.StatePeriod
    assigns []domain.AssignmentPeriod

    applied string     // tracked label physically on the issue, "" if none
    start   *time.Time // accrual start, nil while predicates unsatisfied

    intervals map[string][]domain.LabelInterval
}

// Attribute walks the merged timeline and returns, per tracked label,
// the contiguous intervals the target user accrued on it. Periods in
// states and assigns must come from the same timeline.
func Attribute(timeline []Event, states []domain.StatePeriod, assigns []domain.AssignmentPeriod, tracked []string, target string, b Bounds) map[string][]domain.LabelInterval {
    a := &attributor{
        states:    states,
        assigns:   assigns,
        intervals: make(map[string][]domain.LabelInterval, len(tracked)),
    }

    for _, ev := range timeline {
        switch ev.Kind {
        case KindLabel:
            name, ok := canonical(ev.Label, tracked)
            if !ok { continue }
            if ev.Add {
                // A repeated add of the applied label must not restart
                // the running accrual.
                if a.applied == name { continue }
                // A new tracked label interrupts whatever was accruing.
                if a.applied != "" {
                    a.close(ev.At)
                }
                a.applied = name
                a.start = nil
                if a.satisfied(ev.At) {
                    t := ev.At
                    a.start = &t
                }
            } else if a.applied == name {
                a.close(ev.At)
                a.applied = ""
            }
        case KindNote:
            if a.applied == "" { continue }
            switch ClassifyNote(ev.Body, target) {
            case NoteAssigned, NoteUnassigned, NoteClosed, NoteReopened:
                if a.start != nil && !a.satisfied(ev.At) {
                    a.close(ev.At)
                } else if a.start == nil && a.satisfied(ev.At) {
                    t := ev.At
                    a.start = &t
                }
            }
        }
    }
    if a.applied != "" {
        a.close(b.End)
    }
    return a.intervals
}

// satisfied reports whether the issue is open and the target assigned
// at instant t. Periods are half-open [Start, End).
func (a *attributor) satisfied(t time.Time) bool {
    return a.openAt(t) && a.assignedAt(t)
}

func (a *attributor) openAt(t time.Time) bool {
    for _, p := range a.states {
        if p.State == domain.StateOpened && !t.Before(p.Start) && t.Before(p.End) {
            return true
        }
    }
    return false
}

func (a *attributor) assignedAt(t time.Time) bool {
    for _, p := range a.assigns {
        if !t.Before(p.Start) && t.Before(p.End) { return true }
    }
    return false
}

// close ends the running accrual, if any, at `at` clipped to the end
// of the assignment period and the open state period the accrual
// started in. Clipping keeps a late-arriving close event from
// counting time past an unassignment or an issue close.
func (a *attributor) close(at time.Time) {
    if a.start == nil { return }
    end := at
    for _, p := range a.assigns {
        if !a.start.Before(p.Start) && a.start.Before(p.End) {
            if p.End.Before(end) { end = p.End }
            break
        }
    }
    for _, p := range a.states {
        if p.State == domain.StateOpened && !a.start.Before(p.Start) && a.start.Before(p.End) {
            if p.End.Before(end) { end = p.End }
            break
        }
    }
    if end.After(*a.start) {
        a.intervals[a.applied] = append(a.intervals[a.applied], domain.LabelInterval{
            Label:   a.applied,
            Start:   *a.start,
            End:     end,
            Seconds: end.Sub(*a.start).Seconds(),
        })
    }
    a.start = nil
}

func canonical(label string, tracked []string) (string, bool) {
    for _, t := range tracked {
        if strings.EqualFold(label, t) { return t, true }
    }
    return "", false
}
