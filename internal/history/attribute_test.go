/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "testing"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

const day = 86400.0

var tracked = []string{"doing", "review", "qa"}

func sysNote(at, body string) domain.RawNote {
    return domain.RawNote{CreatedAt: at, System: true, Body: body}
}

func labelEv(at, name, action string) domain.RawLabelEvent {
    return domain.RawLabelEvent{CreatedAt: at, Action: action, Label: domain.Label{Name: name}}
}

func openIssue() domain.Issue {
    return domain.Issue{ProjectID: 1, IID: 7, Title: "t", State: "opened", CreatedAt: "2024-03-01T00:00:00Z"}
}

func compute(issue domain.Issue, notes []domain.RawNote, events []domain.RawLabelEvent) domain.TaskMetrics {
    now := ts("2024-03-15T00:00:00Z")
    return Compute(issue, notes, events, "alice", tracked, now, zerolog.Nop())
}

func TestComputeSimpleCycle(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-05T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), notes, events)

    assert.Empty(t, m.Error)
    assert.InDelta(t, 2*day, m.CycleSeconds, 0.001)
    require.Len(t, m.CycleHistory, 1)
    assert.Equal(t, ts("2024-03-03T00:00:00Z"), m.CycleHistory[0].Start)
    assert.Equal(t, ts("2024-03-05T00:00:00Z"), m.CycleHistory[0].End)
    assert.Zero(t, m.ReviewSeconds)
    assert.Zero(t, m.QASeconds)
}

func TestComputeLabelBeforeAssignmentStartsLazily(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-04T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-02T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-06T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), notes, events)

    // Nothing accrues before the assignment; counting starts at the
    // assignment note, not retroactively at the label add.
    assert.InDelta(t, 2*day, m.CycleSeconds, 0.001)
    require.Len(t, m.CycleHistory, 1)
    assert.Equal(t, ts("2024-03-04T00:00:00Z"), m.CycleHistory[0].Start)
}

func TestComputeLabelEntirelyOutsideAssignment(t *testing.T) {
    events := []domain.RawLabelEvent{
        labelEv("2024-03-02T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-06T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), nil, events)

    assert.Zero(t, m.CycleSeconds)
    assert.Empty(t, m.CycleHistory)
}

func TestComputeCloseClipsAccrual(t *testing.T) {
    issue := openIssue()
    issue.State = "closed"
    issue.ClosedAt = "2024-03-05T00:00:00Z"
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
        sysNote("2024-03-05T00:00:00Z", "closed"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
        // label never removed
    }

    m := compute(issue, notes, events)

    assert.InDelta(t, 2*day, m.CycleSeconds, 0.001)
    require.Len(t, m.CycleHistory, 1)
    assert.Equal(t, ts("2024-03-05T00:00:00Z"), m.CycleHistory[0].End)
}

func TestComputeReopenResumesAccrual(t *testing.T) {
    issue := openIssue()
    issue.State = "closed"
    issue.ClosedAt = "2024-03-09T00:00:00Z"
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
        sysNote("2024-03-05T00:00:00Z", "closed"),
        sysNote("2024-03-08T00:00:00Z", "reopened"),
        sysNote("2024-03-09T00:00:00Z", "closed"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
    }

    m := compute(issue, notes, events)

    // 2d before the first close plus 1d between reopen and re-close.
    assert.InDelta(t, 3*day, m.CycleSeconds, 0.001)
    require.Len(t, m.CycleHistory, 2)
    assert.Equal(t, ts("2024-03-08T00:00:00Z"), m.CycleHistory[1].Start)
    assert.Equal(t, ts("2024-03-09T00:00:00Z"), m.CycleHistory[1].End)
}

func TestComputeRelabelInterruptsPreviousLabel(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-05T00:00:00Z", "review", domain.LabelAdd),
        labelEv("2024-03-07T00:00:00Z", "review", domain.LabelRemove),
        // stale remove for a label that is no longer the active one
        labelEv("2024-03-08T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), notes, events)

    assert.InDelta(t, 2*day, m.CycleSeconds, 0.001)
    assert.InDelta(t, 2*day, m.ReviewSeconds, 0.001)
    require.Len(t, m.CycleHistory, 1)
    assert.Equal(t, ts("2024-03-05T00:00:00Z"), m.CycleHistory[0].End)
}

func TestComputeDuplicateLabelAddKeepsAccrualStart(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-05T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-07T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), notes, events)

    // The second add is a no-op: accrual runs 03-03 through 03-07.
    assert.InDelta(t, 4*day, m.CycleSeconds, 0.001)
    require.Len(t, m.CycleHistory, 1)
    assert.Equal(t, ts("2024-03-03T00:00:00Z"), m.CycleHistory[0].Start)
}

func TestComputeReassignAwayAndBack(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
        sysNote("2024-03-05T00:00:00Z", "reassigned to @bob"),
        sysNote("2024-03-07T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-09T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), notes, events)

    assert.InDelta(t, 4*day, m.CycleSeconds, 0.001)
    require.Len(t, m.CycleHistory, 2)
    assert.Equal(t, ts("2024-03-05T00:00:00Z"), m.CycleHistory[0].End)
    assert.Equal(t, ts("2024-03-07T00:00:00Z"), m.CycleHistory[1].Start)
}

func TestComputeOpenIssueAccruesUntilNow(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "qa", domain.LabelAdd),
    }

    m := compute(openIssue(), notes, events)

    // now is pinned to 2024-03-15 in the helper.
    assert.InDelta(t, 12*day, m.QASeconds, 0.001)
    require.Len(t, m.QAHistory, 1)
    assert.Equal(t, ts("2024-03-15T00:00:00Z"), m.QAHistory[0].End)
}

func TestComputeIsDeterministic(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
        sysNote("2024-03-06T00:00:00Z", "unassigned @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-04T00:00:00Z", "doing", domain.LabelRemove),
        labelEv("2024-03-05T00:00:00Z", "review", domain.LabelAdd),
        labelEv("2024-03-08T00:00:00Z", "review", domain.LabelRemove),
    }

    a := compute(openIssue(), notes, events)
    b := compute(openIssue(), notes, events)
    assert.Equal(t, a, b)
}

func TestComputeIntervalsDoNotOverlapAndSumMatches(t *testing.T) {
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
        sysNote("2024-03-05T00:00:00Z", "unassigned @alice"),
        sysNote("2024-03-06T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-03T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-08T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), notes, events)

    var total float64
    var prev time.Time
    for i, iv := range m.CycleHistory {
        total += iv.Seconds
        assert.InDelta(t, iv.End.Sub(iv.Start).Seconds(), iv.Seconds, 0.001)
        if i > 0 {
            assert.False(t, iv.Start.Before(prev), "intervals must not overlap")
        }
        prev = iv.End
    }
    assert.InDelta(t, total, m.CycleSeconds, 0.001)
}

func TestComputeUnparsableCreatedAt(t *testing.T) {
    issue := openIssue()
    issue.CreatedAt = "garbage"

    m := compute(issue, nil, nil)

    assert.NotEmpty(t, m.Error)
    assert.Zero(t, m.CycleSeconds)
}

func TestComputeTieNoteAppliesBeforeLabel(t *testing.T) {
    // Assignment note and label add share a timestamp: the note is
    // applied first, so the label add already sees the user assigned.
    notes := []domain.RawNote{
        sysNote("2024-03-02T00:00:00Z", "assigned to @alice"),
    }
    events := []domain.RawLabelEvent{
        labelEv("2024-03-02T00:00:00Z", "doing", domain.LabelAdd),
        labelEv("2024-03-04T00:00:00Z", "doing", domain.LabelRemove),
    }

    m := compute(openIssue(), notes, events)

    assert.InDelta(t, 2*day, m.CycleSeconds, 0.001)
    require.Len(t, m.CycleHistory, 1)
    assert.Equal(t, ts("2024-03-02T00:00:00Z"), m.CycleHistory[0].Start)
}
