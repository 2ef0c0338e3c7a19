/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

// IssueRef identifies a GitLab issue: project id plus the issue's
// internal id within that project.
type IssueRef struct {
    ProjectID int64 `json:"project_id"`
    IssueIID  int64 `json:"iid"`
}

type UserRef struct {
    ID       int64  `json:"id"`
    Username string `json:"username"`
    Name     string `json:"name"`
}

type UserProfile struct {
    ID        int64  `json:"id"`
    Username  string `json:"username"`
    Name      string `json:"name"`
    Email     string `json:"email,omitempty"`
    State     string `json:"state"`
    AvatarURL string `json:"avatar_url,omitempty"`
    CreatedAt string `json:"created_at,omitempty"`
}

type Issue struct {
    ID        int64     `json:"id"`
    IID       int64     `json:"iid"`
    ProjectID int64     `json:"project_id"`
    Title     string    `json:"title"`
    State     string    `json:"state"`
    Labels    []string  `json:"labels"`
    CreatedAt string    `json:"created_at"`
    UpdatedAt string    `json:"updated_at"`
    ClosedAt  string    `json:"closed_at"`
    Assignees []UserRef `json:"assignees"`
    Author    UserRef   `json:"author"`
    WebURL    string    `json:"web_url"`
}

func (i Issue) Ref() IssueRef { return IssueRef{ProjectID: i.ProjectID, IssueIID: i.IID} }

// RawNote is a GitLab note as returned by the notes endpoint. Only
// system notes take part in state reconstruction; user comments are
// skipped at normalization.
type RawNote struct {
    CreatedAt string  `json:"created_at"`
    System    bool    `json:"system"`
    Body      string  `json:"body"`
    Author    UserRef `json:"author"`
}

const (
    LabelAdd    = "add"
    LabelRemove = "remove"
)

// RawLabelEvent is a resource label event: GitLab's structured record
// of a label add/remove, no text parsing needed.
type RawLabelEvent struct {
    CreatedAt string  `json:"created_at"`
    Action    string  `json:"action"`
    Label     Label   `json:"label"`
    User      UserRef `json:"user"`
}

type Label struct {
    ID          int64  `json:"id"`
    Name        string `json:"name"`
    Description string `json:"description"`
}

type IssueState string

const (
    StateOpened IssueState = "opened"
    StateClosed IssueState = "closed"
)

// StatePeriod is a maximal interval during which the issue's
// open/closed state did not change. The periods for one issue
// partition [createdAt, closedAt ?? now] with no gaps or overlaps.
type StatePeriod struct {
    State IssueState `json:"state"`
    Start time.Time  `json:"start"`
    End   time.Time  `json:"end"`
}

// AssignmentPeriod is a maximal interval during which the target user
// held the assignee role. Periods for one user never overlap.
type AssignmentPeriod struct {
    Start time.Time `json:"start"`
    End   time.Time `json:"end"`
}

// LabelInterval is one contiguous stretch during which a tracked label
// was attached while the issue was open and the target user assigned.
type LabelInterval struct {
    Label   string    `json:"label"`
    Start   time.Time `json:"start"`
    End     time.Time `json:"end"`
    Seconds float64   `json:"duration_seconds"`
}

// TaskMetrics is the per-issue result of history reconstruction.
// Computed fresh per report request, never cached.
type TaskMetrics struct {
    Ref           IssueRef           `json:"ref"`
    Title         string             `json:"title"`
    State         string             `json:"state"`
    Assignments   []AssignmentPeriod `json:"assignment_history,omitempty"`
    CycleSeconds  float64            `json:"cycle_seconds"`
    ReviewSeconds float64            `json:"review_seconds"`
    QASeconds     float64            `json:"qa_seconds"`
    CycleHistory  []LabelInterval    `json:"cycle_history,omitempty"`
    ReviewHistory []LabelInterval    `json:"review_history,omitempty"`
    QAHistory     []LabelInterval    `json:"qa_history,omitempty"`
    Error         string             `json:"error,omitempty"`
}

// TimeStats mirrors GitLab's per-issue time tracking block.
type TimeStats struct {
    TimeEstimate        int64  `json:"time_estimate"`
    TotalTimeSpent      int64  `json:"total_time_spent"`
    HumanTimeEstimate   string `json:"human_time_estimate"`
    HumanTotalTimeSpent string `json:"human_total_time_spent"`
}

// TaskEstimate pairs an issue with its time tracking numbers for the
// estimate report.
type TaskEstimate struct {
    Ref             IssueRef `json:"ref"`
    Title           string   `json:"title"`
    State           string   `json:"state"`
    EstimateSeconds int64    `json:"estimate_seconds"`
    SpentSeconds    int64    `json:"spent_seconds"`
    HumanEstimate   string   `json:"human_estimate,omitempty"`
    HumanSpent      string   `json:"human_spent,omitempty"`
    Error           string   `json:"error,omitempty"`
}

// TaskDraft is what the LLM assistant extracts from a free-form
// message before an issue is created.
type TaskDraft struct {
    ProjectID    int64    `json:"project_id"`
    Title        string   `json:"title"`
    Description  string   `json:"description"`
    AssigneeName string   `json:"assignee_name"`
    Labels       []string `json:"labels,omitempty"`
}
