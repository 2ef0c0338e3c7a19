/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "testing"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func note(at, body string) Event {
    return Event{At: ts(at), Kind: KindNote, Body: body}
}

func TestStatePeriodsPartitionLifetime(t *testing.T) {
    b := Bounds{Created: ts("2024-03-01T00:00:00Z"), End: ts("2024-03-10T00:00:00Z")}
    timeline := []Event{
        note("2024-03-03T00:00:00Z", "closed"),
        note("2024-03-05T00:00:00Z", "reopened"),
        note("2024-03-08T00:00:00Z", "closed"),
    }

    periods := StatePeriods(timeline, "alice", b)

    require.Len(t, periods, 4)
    assert.Equal(t, domain.StateOpened, periods[0].State)
    assert.Equal(t, domain.StateClosed, periods[1].State)
    assert.Equal(t, domain.StateOpened, periods[2].State)
    assert.Equal(t, domain.StateClosed, periods[3].State)

    // Partition: starts at creation, ends at the bound, each period
    // begins exactly where the previous one ended.
    assert.Equal(t, b.Created, periods[0].Start)
    assert.Equal(t, b.End, periods[len(periods)-1].End)
    for i := 1; i < len(periods); i++ {
        assert.Equal(t, periods[i-1].End, periods[i].Start)
    }
}

func TestStatePeriodsIgnoresDuplicateTransitions(t *testing.T) {
    b := Bounds{Created: ts("2024-03-01T00:00:00Z"), End: ts("2024-03-10T00:00:00Z")}
    timeline := []Event{
        note("2024-03-03T00:00:00Z", "closed"),
        note("2024-03-04T00:00:00Z", "closed"),
        note("2024-03-05T00:00:00Z", "reopened"),
        note("2024-03-06T00:00:00Z", "reopened"),
    }

    periods := StatePeriods(timeline, "alice", b)

    require.Len(t, periods, 3)
    assert.Equal(t, domain.StateClosed, periods[1].State)
    assert.Equal(t, ts("2024-03-03T00:00:00Z"), periods[1].Start)
    assert.Equal(t, ts("2024-03-05T00:00:00Z"), periods[1].End)
}

func TestStatePeriodsNoTransitions(t *testing.T) {
    b := Bounds{Created: ts("2024-03-01T00:00:00Z"), End: ts("2024-03-10T00:00:00Z")}

    periods := StatePeriods(nil, "alice", b)

    require.Len(t, periods, 1)
    assert.Equal(t, domain.StateOpened, periods[0].State)
    assert.Equal(t, b.Created, periods[0].Start)
    assert.Equal(t, b.End, periods[0].End)
}

func TestAssignmentPeriodsOpenAndClose(t *testing.T) {
    b := Bounds{Created: ts("2024-03-01T00:00:00Z"), End: ts("2024-03-10T00:00:00Z")}
    timeline := []Event{
        note("2024-03-02T00:00:00Z", "assigned to @alice"),
        note("2024-03-04T00:00:00Z", "unassigned @alice"),
        note("2024-03-06T00:00:00Z", "assigned to @alice"),
    }

    periods := AssignmentPeriods(timeline, "alice", b)

    require.Len(t, periods, 2)
    assert.Equal(t, ts("2024-03-02T00:00:00Z"), periods[0].Start)
    assert.Equal(t, ts("2024-03-04T00:00:00Z"), periods[0].End)
    // Still assigned at the bound: the open period closes there.
    assert.Equal(t, ts("2024-03-06T00:00:00Z"), periods[1].Start)
    assert.Equal(t, b.End, periods[1].End)
}

func TestAssignmentPeriodsReassignAwayClosesPeriod(t *testing.T) {
    b := Bounds{Created: ts("2024-03-01T00:00:00Z"), End: ts("2024-03-10T00:00:00Z")}
    timeline := []Event{
        note("2024-03-02T00:00:00Z", "assigned to @alice"),
        note("2024-03-04T00:00:00Z", "reassigned to @bob"),
    }

    periods := AssignmentPeriods(timeline, "alice", b)

    require.Len(t, periods, 1)
    assert.Equal(t, ts("2024-03-04T00:00:00Z"), periods[0].End)
}

func TestAssignmentPeriodsUnassignWithoutAssignIgnored(t *testing.T) {
    b := Bounds{Created: ts("2024-03-01T00:00:00Z"), End: ts("2024-03-10T00:00:00Z")}
    timeline := []Event{
        note("2024-03-02T00:00:00Z", "unassigned @alice"),
    }

    assert.Empty(t, AssignmentPeriods(timeline, "alice", b))
}

func TestAssignmentPeriodsNeverOverlap(t *testing.T) {
    b := Bounds{Created: ts("2024-03-01T00:00:00Z"), End: ts("2024-03-20T00:00:00Z")}
    timeline := []Event{
        note("2024-03-02T00:00:00Z", "assigned to @alice"),
        note("2024-03-03T00:00:00Z", "assigned to @alice"), // duplicate assign
        note("2024-03-05T00:00:00Z", "unassigned @alice"),
        note("2024-03-07T00:00:00Z", "assigned to @alice"),
        note("2024-03-09T00:00:00Z", "unassigned @alice"),
    }

    periods := AssignmentPeriods(timeline, "alice", b)

    require.Len(t, periods, 2)
    for i := 1; i < len(periods); i++ {
        assert.False(t, periods[i].Start.Before(periods[i-1].End), "periods must not overlap")
    }
    // Duplicate assignment keeps the original start.
    assert.Equal(t, ts("2024-03-02T00:00:00Z"), periods[0].Start)
}
