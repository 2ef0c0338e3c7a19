/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    "github.com/rs/zerolog"
)

type Client struct {
    token string
    http  *http.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{ token: cfg.TelegramToken, http: &http.Client{ Timeout: 30 * time.Second }, log: log }
}

func (c *Client) call(ctx context.Context, method string, body map[string]any, result any) error {
    if c.token == "" { return fmt.Errorf("telegram: missing token") }
    url := fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.token, method)
    b, _ := json.Marshal(body)
    req, _ := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        bodyBytes, _ := io.ReadAll(resp.Body)
        return fmt.Errorf("telegram %s status=%d body=%s", method, resp.StatusCode, string(bodyBytes))
    }
    if result != nil {
        return json.NewDecoder(resp.Body).Decode(result)
    }
    return nil
}

// SendMessage sends plain text, no parse_mode: report rows and task
// titles carry user-written text that Markdown mode would choke on.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
    if chatID == 0 { return fmt.Errorf("telegram: missing chat id") }
    return c.call(ctx, "sendMessage", map[string]any{
        "chat_id": chatID, "text": text, "disable_web_page_preview": true,
    }, nil)
}

// SendMessageID sends a plain message and returns its message id, for
// later in-place progress edits.
func (c *Client) SendMessageID(ctx context.Context, chatID int64, text string) (int64, error) {
    if chatID == 0 { return 0, fmt.Errorf("telegram: missing chat id") }
    var r struct {
        OK     bool `json:"ok"`
        Result struct {
            MessageID int64 `json:"message_id"`
        } `json:"result"`
    }
    err := c.call(ctx, "sendMessage", map[string]any{
        "chat_id": chatID, "text": text, "disable_web_page_preview": true,
    }, &r)
    if err != nil { return 0, err }
    if !r.OK { return 0, fmt.Errorf("telegram: sendMessage not ok") }
    return r.Result.MessageID, nil
}

// EditMessageText rewrites a previously sent message. Telegram answers
// 400 when the text is unchanged; callers treat that as harmless.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
    if chatID == 0 || messageID == 0 { return fmt.Errorf("telegram: missing chat or message id") }
    return c.call(ctx, "editMessageText", map[string]any{
        "chat_id": chatID, "message_id": messageID, "text": text,
    }, nil)
}

// SendKeyboard sends a message with a one-time reply keyboard; rows is
// the button layout, one slice per keyboard row.
func (c *Client) SendKeyboard(ctx context.Context, chatID int64, text string, rows [][]string) error {
    if chatID == 0 { return fmt.Errorf("telegram: missing chat id") }
    kb := make([][]map[string]any, 0, len(rows))
    for _, row := range rows {
        btns := make([]map[string]any, 0, len(row))
        for _, label := range row {
            btns = append(btns, map[string]any{"text": label})
        }
        kb = append(kb, btns)
    }
    return c.call(ctx, "sendMessage", map[string]any{
        "chat_id": chatID,
        "text":    text,
        "reply_markup": map[string]any{
            "keyboard":          kb,
            "resize_keyboard":   true,
            "one_time_keyboard": false,
        },
    }, nil)
}

// SendDocument uploads a file as a document attachment with a caption.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
    if c.token == "" || chatID == 0 { return fmt.Errorf("telegram: missing token or chat id") }
    var buf bytes.Buffer
    w := multipart.NewWriter(&buf)
    _ = w.WriteField("chat_id", fmt.Sprint(chatID))
    if caption != "" { _ = w.WriteField("caption", caption) }
    fw, err := w.CreateFormFile("document", filename)
    if err != nil { return err }
    if _, err := fw.Write(data); err != nil { return err }
    if err := w.Close(); err != nil { return err }

    url := fmt.Sprintf("https://api.telegram.org/bot%s/sendDocument", c.token)
    req, _ := http.NewRequestWithContext(ctx, "POST", url, &buf)
    req.Header.Set("Content-Type", w.FormDataContentType())
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        bodyBytes, _ := io.ReadAll(resp.Body)
        return fmt.Errorf("telegram sendDocument status=%d body=%s", resp.StatusCode, string(bodyBytes))
    }
    return nil
}

// FilePath resolves a file_id (e.g. of a voice note) to a download path.
func (c *Client) FilePath(ctx context.Context, fileID string) (string, error) {
    if fileID == "" { return "", fmt.Errorf("telegram: missing file id") }
    var r struct {
        OK     bool `json:"ok"`
        Result struct {
            FilePath string `json:"file_path"`
        } `json:"result"`
    }
    if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &r); err != nil { return "", err }
    if !r.OK || r.Result.FilePath == "" { return "", fmt.Errorf("telegram: invalid getFile response") }
    return r.Result.FilePath, nil
}

// DownloadFile fetches the raw bytes behind a path from FilePath.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
    if c.token == "" || filePath == "" { return nil, fmt.Errorf("telegram: missing token or file path") }
    url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, filePath)
    req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
    resp, err := c.http.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 { return nil, fmt.Errorf("telegram file download status=%d", resp.StatusCode) }
    return io.ReadAll(resp.Body)
}

// SetWebhook registers the webhook URL and secret with Telegram
func (c *Client) SetWebhook(ctx context.Context, webhookURL string, secretToken string) error {
    if webhookURL == "" || secretToken == "" { return fmt.Errorf("telegram: missing url or secret") }
    return c.call(ctx, "setWebhook", map[string]any{
        "url":                  webhookURL,
        "secret_token":         secretToken,
        "drop_pending_updates": true,
        "allowed_updates":      []string{"message"},
    }, nil)
}
