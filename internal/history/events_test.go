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

func ts(s string) time.Time {
    t, err := time.Parse(time.RFC3339, s)
    if err != nil { panic(err) }
    return t.UTC()
}

func TestNormalizeSkipsUserCommentsAndBadTimestamps(t *testing.T) {
    notes := []domain.RawNote{
        {CreatedAt: "2024-03-01T10:00:00Z", System: true, Body: "assigned to @alice"},
        {CreatedAt: "2024-03-01T11:00:00Z", System: false, Body: "just a comment"},
        {CreatedAt: "not-a-time", System: true, Body: "closed"},
    }
    events := []domain.RawLabelEvent{
        {CreatedAt: "2024-03-01T10:30:00Z", Action: domain.LabelAdd, Label: domain.Label{Name: "doing"}},
        {CreatedAt: "", Action: domain.LabelRemove, Label: domain.Label{Name: "doing"}},
    }

    noteEvs, labelEvs := Normalize(notes, events, zerolog.Nop())

    require.Len(t, noteEvs, 1)
    assert.Equal(t, "assigned to @alice", noteEvs[0].Body)
    require.Len(t, labelEvs, 1)
    assert.Equal(t, "doing", labelEvs[0].Label)
    assert.True(t, labelEvs[0].Add)
}

func TestNormalizeSortsOutOfOrderPages(t *testing.T) {
    notes := []domain.RawNote{
        {CreatedAt: "2024-03-02T10:00:00Z", System: true, Body: "b"},
        {CreatedAt: "2024-03-01T10:00:00Z", System: true, Body: "a"},
    }
    noteEvs, _ := Normalize(notes, nil, zerolog.Nop())
    require.Len(t, noteEvs, 2)
    assert.Equal(t, "a", noteEvs[0].Body)
    assert.Equal(t, "b", noteEvs[1].Body)
}

func TestMergeInterleavesByTime(t *testing.T) {
    notes := []Event{
        {At: ts("2024-03-01T10:00:00Z"), Kind: KindNote, Body: "n1"},
        {At: ts("2024-03-01T12:00:00Z"), Kind: KindNote, Body: "n2"},
    }
    labels := []Event{
        {At: ts("2024-03-01T11:00:00Z"), Kind: KindLabel, Label: "doing", Add: true},
    }

    out := Merge(notes, labels)

    require.Len(t, out, 3)
    assert.Equal(t, "n1", out[0].Body)
    assert.Equal(t, "doing", out[1].Label)
    assert.Equal(t, "n2", out[2].Body)
}

func TestMergeNoteWinsTimestampTie(t *testing.T) {
    at := ts("2024-03-01T10:00:00Z")
    notes := []Event{{At: at, Kind: KindNote, Body: "assigned to @alice"}}
    labels := []Event{{At: at, Kind: KindLabel, Label: "doing", Add: true}}

    out := Merge(notes, labels)

    require.Len(t, out, 2)
    assert.Equal(t, KindNote, out[0].Kind)
    assert.Equal(t, KindLabel, out[1].Kind)
}

func TestMergeDrainsBothTails(t *testing.T) {
    notes := []Event{
        {At: ts("2024-03-01T10:00:00Z"), Kind: KindNote},
        {At: ts("2024-03-05T10:00:00Z"), Kind: KindNote},
        {At: ts("2024-03-06T10:00:00Z"), Kind: KindNote},
    }
    labels := []Event{
        {At: ts("2024-03-02T10:00:00Z"), Kind: KindLabel},
        {At: ts("2024-03-09T10:00:00Z"), Kind: KindLabel},
        {At: ts("2024-03-10T10:00:00Z"), Kind: KindLabel},
    }

    out := Merge(notes, labels)

    require.Len(t, out, 6)
    for i := 1; i < len(out); i++ {
        assert.False(t, out[i].At.Before(out[i-1].At), "timeline must be non-decreasing at %d", i)
    }

    // Symmetric case: the note stream outlives the label stream.
    out = Merge(labels, notes)
    assert.Len(t, out, 6)
}

func TestMergeEmptyStreams(t *testing.T) {
    assert.Empty(t, Merge(nil, nil))
    one := []Event{{At: ts("2024-03-01T10:00:00Z"), Kind: KindNote}}
    assert.Len(t, Merge(one, nil), 1)
    assert.Len(t, Merge(nil, one), 1)
}
