/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package openai

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "strings"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    openaisdk "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/rs/zerolog"
)

type Client struct {
    api          openaisdk.Client
    key          string
    chatModel    string
    whisperModel string
    http         *http.Client
    log          zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        api:          openaisdk.NewClient(option.WithAPIKey(cfg.OpenAIKey)),
        key:          cfg.OpenAIKey,
        chatModel:    cfg.OpenAIModel,
        whisperModel: cfg.WhisperModel,
        http:         &http.Client{ Timeout: cfg.OpenAITimeout },
        log:          log,
    }
}

// Complete runs one system+user chat exchange and returns the raw
// assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
    if strings.TrimSpace(c.key) == "" { return "", errors.New("openai: missing key") }
    resp, err := c.api.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
        Model: shared.ChatModel(c.chatModel),
        Messages: []openaisdk.ChatCompletionMessageParamUnion{
            openaisdk.SystemMessage(system),
            openaisdk.UserMessage(user),
        },
        Temperature: openaisdk.Float(0.1),
    })
    if err != nil { return "", err }
    if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
    return resp.Choices[0].Message.Content, nil
}

// Transcribe sends a voice note to the audio transcription endpoint
// and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, filename string, data []byte) (string, error) {
    if strings.TrimSpace(c.key) == "" { return "", errors.New("openai: missing key") }
    var buf bytes.Buffer
    w := multipart.NewWriter(&buf)
    _ = w.WriteField("model", c.whisperModel)
    fw, err := w.CreateFormFile("file", filename)
    if err != nil { return "", err }
    if _, err := fw.Write(data); err != nil { return "", err }
    if err := w.Close(); err != nil { return "", err }

    req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/audio/transcriptions", &buf)
    req.Header.Set("Authorization", "Bearer "+c.key)
    req.Header.Set("Content-Type", w.FormDataContentType())
    resp, err := c.http.Do(req)
    if err != nil { return "", err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        b, _ := io.ReadAll(resp.Body)
        return "", fmt.Errorf("openai transcription status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
    }
    var out struct{ Text string `json:"text"` }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil { return "", err }
    return out.Text, nil
}
