/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package history reconstructs an issue's state over time from its
// system notes and resource label events, and attributes label
// durations to a target user for the periods the user was assignee
// while the issue was open. Everything here is a pure function of its
// inputs: the same notes and label events always produce the same
// metrics.
package history

import (
    "sort"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/rs/zerolog"
)

type Kind int

const (
    KindNote Kind = iota
    KindLabel
)

// Event is the normalized shape shared by system notes and label
// events once they are merged into one timeline.
type Event struct {
    At   time.Time
    Kind Kind

    // KindNote
    Body string

    // KindLabel
    Label string
    Add   bool
}

func parseTimeUTC(s string) (time.Time, bool) {
    if s == "" { return time.Time{}, false }
    layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05-0700"}
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil { return t.UTC(), true }
    }
    return time.Time{}, false
}

// Normalize converts raw notes and raw label events into two
// individually sorted event streams. Non-system notes are skipped.
// A record with an unparsable timestamp is dropped and logged; it
// never fails the whole computation.
func Normalize(notes []domain.RawNote, labelEvents []domain.RawLabelEvent, log zerolog.Logger) (noteEvents, labelEvs []Event) {
    noteEvents = make([]Event, 0, len(notes))
    for _, n := range notes {
        if !n.System { continue }
        at, ok := parseTimeUTC(n.CreatedAt)
        if !ok {
            log.Warn().Str("created_at", n.CreatedAt).Msg("note with unparsable timestamp dropped")
            continue
        }
        noteEvents = append(noteEvents, Event{At: at, Kind: KindNote, Body: n.Body})
    }
    labelEvs = make([]Event, 0, len(labelEvents))
    for _, e := range labelEvents {
        at, ok := parseTimeUTC(e.CreatedAt)
        if !ok {
            log.Warn().Str("created_at", e.CreatedAt).Msg("label event with unparsable timestamp dropped")
            continue
        }
        labelEvs = append(labelEvs, Event{At: at, Kind: KindLabel, Label: e.Label.Name, Add: e.Action == domain.LabelAdd})
    }
    // Pages arrive ordered within themselves but not necessarily
    // globally; sort, don't assume.
    sort.SliceStable(noteEvents, func(i, j int) bool { return noteEvents[i].At.Before(noteEvents[j].At) })
    sort.SliceStable(labelEvs, func(i, j int) bool { return labelEvs[i].At.Before(labelEvs[j].At) })
    return noteEvents, labelEvs
}

// Merge interleaves two pre-sorted event streams into one timeline in
// O(n+m). When a note and a label change share a timestamp the note is
// emitted first; this tie-break is a fixed contract, not an accident.
// Both tails are fully drained.
func Merge(notes, labels []Event) []Event {
    out := make([]Event, 0, len(notes)+len(labels))
    i, j := 0, 0
    for i < len(notes) && j < len(labels) {
        if !labels[j].At.Before(notes[i].At) {
            out = append(out, notes[i])
            i++
        } else {
            out = append(out, labels[j])
            j++
        }
    }
    out = append(out, notes[i:]...)
    out = append(out, labels[j:]...)
    return out
}
