/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "testing"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type fakeLLM struct {
    completion string
    transcript string
    lastUser   string
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
    f.lastUser = user
    return f.completion, nil
}

func (f *fakeLLM) Transcribe(ctx context.Context, filename string, data []byte) (string, error) {
    return f.transcript, nil
}

func TestCreateTaskFromText(t *testing.T) {
    gl := &fakeGitLab{
        users: []domain.UserProfile{
            {ID: 7, Username: "bob", Name: "Bob Smith"},
            {ID: 8, Username: "alice", Name: "Alice"},
        },
    }
    llm := &fakeLLM{completion: "```json\n{\"project_id\": 9, \"title\": \"Fix login\", \"description\": \"details\", \"assignee_name\": \"Bob Smith\"}\n```"}
    cfg := testConfig()
    cfg.DefaultProjectID = 5
    s := New(cfg, gl, llm, nil, zerolog.Nop())

    issue, err := s.CreateTaskFromText(context.Background(), "please fix the login page, Bob should take it")

    require.NoError(t, err)
    assert.Equal(t, "Fix login", issue.Title)
    require.Len(t, gl.created, 1)
    assert.Equal(t, int64(9), gl.created[0].ProjectID)
    assert.Equal(t, int64(7), gl.createdID[0])
}

func TestCreateTaskFromTextFallsBackToDefaultProject(t *testing.T) {
    gl := &fakeGitLab{}
    llm := &fakeLLM{completion: `{"project_id": 0, "title": "Task", "description": "", "assignee_name": ""}`}
    cfg := testConfig()
    cfg.DefaultProjectID = 5
    s := New(cfg, gl, llm, nil, zerolog.Nop())

    _, err := s.CreateTaskFromText(context.Background(), "do a thing")

    require.NoError(t, err)
    require.Len(t, gl.created, 1)
    assert.Equal(t, int64(5), gl.created[0].ProjectID)
    assert.Equal(t, int64(0), gl.createdID[0])
}

func TestCreateTaskFromTextRejectsBadDraft(t *testing.T) {
    gl := &fakeGitLab{}
    llm := &fakeLLM{completion: `{"title": ""}`}
    s := New(testConfig(), gl, llm, nil, zerolog.Nop())

    _, err := s.CreateTaskFromText(context.Background(), "do a thing")
    assert.Error(t, err)
    assert.Empty(t, gl.created)
}

func TestCreateTaskFromVoice(t *testing.T) {
    gl := &fakeGitLab{}
    llm := &fakeLLM{
        transcript: "set up staging",
        completion: `{"project_id": 3, "title": "Set up staging", "description": "", "assignee_name": ""}`,
    }
    s := New(testConfig(), gl, llm, nil, zerolog.Nop())

    issue, transcript, err := s.CreateTaskFromVoice(context.Background(), "voice.ogg", []byte{1})

    require.NoError(t, err)
    assert.Equal(t, "set up staging", transcript)
    assert.Equal(t, "Set up staging", issue.Title)
}

func TestStripFences(t *testing.T) {
    assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
    assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
    assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestResolveAssignee(t *testing.T) {
    gl := &fakeGitLab{users: []domain.UserProfile{
        {ID: 1, Username: "jdoe", Name: "John Doe"},
        {ID: 2, Username: "asmith", Name: "Anna Smith"},
    }}
    s := New(testConfig(), gl, nil, nil, zerolog.Nop())
    ctx := context.Background()

    u, err := s.resolveAssignee(ctx, "@jdoe")
    require.NoError(t, err)
    assert.Equal(t, int64(1), u.ID)

    u, err = s.resolveAssignee(ctx, "anna smith")
    require.NoError(t, err)
    assert.Equal(t, int64(2), u.ID)

    u, err = s.resolveAssignee(ctx, "Doe")
    require.NoError(t, err)
    assert.Equal(t, int64(1), u.ID)

    _, err = s.resolveAssignee(ctx, "nobody")
    assert.Error(t, err)
}

func TestRedact(t *testing.T) {
    in := "ping john.doe@example.com with token glpat-abcdef1234567890 today"
    out := redact(in)
    if out == in {
        t.Fatalf("expected redaction to change the text")
    }
    assert.NotContains(t, out, "john.doe@example.com")
    assert.NotContains(t, out, "glpat-abcdef1234567890")
    assert.Contains(t, out, "[email]")
    assert.Contains(t, out, "[token]")
}
