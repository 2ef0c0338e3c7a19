/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package history

import (
    "regexp"
    "strings"
)

// NoteClass is what a system note means for the target user's history.
type NoteClass int

const (
    NoteIrrelevant NoteClass = iota
    NoteAssigned
    NoteUnassigned
    NoteClosed
    NoteReopened
)

// GitLab system notes are free text and the wording depends on the
// instance locale. The tables below carry every phrasing observed in
// the wild for English and Russian instances; the fallback regex
// handles single-assignee reassignment notes that name someone else.
var (
    assignedPatterns = []string{
        "assigned to @%s",
        "reassigned to @%s",
        "assigned @%s",
        "назначил @%s",
        "назначил на @%s",
        "назначен @%s",
    }
    unassignedPatterns = []string{
        "unassigned @%s",
        "removed assignee @%s",
        "убрал @%s",
        "снял назначение с @%s",
    }
    closedMarkers   = []string{"closed", "закрыл", "закрыто"}
    mergedMarkers   = []string{"merged", "слил"}
    reopenedMarkers = []string{"reopened", "переоткрыл", "открыл заново", "снова открыл"}

    // Catches "assigned to @someone" / "reassigned to @someone" where
    // the captured name is compared against the target: on a
    // single-assignee tracker a reassignment to someone else is a
    // de-facto unassignment of the target.
    reassignRe = regexp.MustCompile(`(?:assigned to|reassigned to|назначил(?: на)?)\s*@?(\w[\w.\-]*)`)
)

// ClassifyNote decides what a system note body means for the given
// username. Matching is case-insensitive on the body; usernames are
// compared case-insensitively too since GitLab treats them that way.
func ClassifyNote(body, username string) NoteClass {
    b := strings.ToLower(body)
    u := strings.ToLower(username)

    // Unassignment first: "unassigned @user" contains the substring
    // "assigned @user", so the order of these two loops matters.
    for _, p := range unassignedPatterns {
        if strings.Contains(b, strings.ToLower(strings.Replace(p, "%s", u, 1))) {
            return NoteUnassigned
        }
    }
    for _, p := range assignedPatterns {
        if strings.Contains(b, strings.ToLower(strings.Replace(p, "%s", u, 1))) {
            return NoteAssigned
        }
    }
    if m := reassignRe.FindStringSubmatch(b); m != nil {
        if strings.EqualFold(m[1], u) { return NoteAssigned }
        return NoteUnassigned
    }

    if containsAny(b, closedMarkers) && !containsAny(b, mergedMarkers) {
        return NoteClosed
    }
    if containsAny(b, reopenedMarkers) {
        return NoteReopened
    }
    return NoteIrrelevant
}

func containsAny(s string, subs []string) bool {
    for _, sub := range subs {
        if strings.Contains(s, sub) { return true }
    }
    return false
}
