package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	apperrors "watgbridge/internal/errors"
	"watgbridge/pkg/telegram/types"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// Client implements types.BotClient over the HTTP Bot API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ types.BotClient = (*Client)(nil)

func NewClient(token, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiResponse is the Bot API envelope every method answers with.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) GetMe(ctx context.Context) (*types.User, error) {
	var user types.User
	if err := c.call(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUpdates(ctx context.Context, offset int64, limit, timeoutSec int) ([]types.Update, error) {
	payload := map[string]interface{}{
		"offset":          offset,
		"limit":           limit,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message"},
	}
	var updates []types.Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *types.SendOptions) (*types.Message, error) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	applyOptions(payload, opts)
	var msg types.Message
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoPath, caption string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendPhoto", "photo", chatID, photoPath, caption, "", opts)
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, videoPath, caption string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendVideo", "video", chatID, videoPath, caption, "", opts)
}

func (c *Client) SendVideoNote(ctx context.Context, chatID int64, videoPath string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendVideoNote", "video_note", chatID, videoPath, "", "", opts)
}

func (c *Client) SendAnimation(ctx context.Context, chatID int64, animationPath, caption string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendAnimation", "animation", chatID, animationPath, caption, "", opts)
}

func (c *Client) SendAudio(ctx context.Context, chatID int64, audioPath, caption, title string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendAudio", "audio", chatID, audioPath, caption, title, opts)
}

func (c *Client) SendVoice(ctx context.Context, chatID int64, voicePath, caption string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendVoice", "voice", chatID, voicePath, caption, "", opts)
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, docPath, caption string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendDocument", "document", chatID, docPath, caption, "", opts)
}

func (c *Client) SendSticker(ctx context.Context, chatID int64, stickerPath string, opts *types.SendOptions) (*types.Message, error) {
	return c.sendFile(ctx, "sendSticker", "sticker", chatID, stickerPath, "", "", opts)
}

func (c *Client) SendLocation(ctx context.Context, chatID int64, latitude, longitude float64, opts *types.SendOptions) (*types.Message, error) {
	payload := map[string]interface{}{
		"chat_id":   chatID,
		"latitude":  latitude,
		"longitude": longitude,
	}
	applyOptions(payload, opts)
	var msg types.Message
	if err := c.call(ctx, "sendLocation", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) SendContact(ctx context.Context, chatID int64, phoneNumber, firstName string, opts *types.SendOptions) (*types.Message, error) {
	payload := map[string]interface{}{
		"chat_id":      chatID,
		"phone_number": phoneNumber,
		"first_name":   firstName,
	}
	applyOptions(payload, opts)
	var msg types.Message
	if err := c.call(ctx, "sendContact", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string, iconColor int) (*types.ForumTopic, error) {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"name":       name,
		"icon_color": iconColor,
	}
	var topic types.ForumTopic
	if err := c.call(ctx, "createForumTopic", payload, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

func (c *Client) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	payload := map[string]interface{}{
		"chat_id":           chatID,
		"message_thread_id": threadID,
		"name":              name,
	}
	return c.call(ctx, "editForumTopic", payload, nil)
}

func (c *Client) SendChatAction(ctx context.Context, chatID, threadID int64, action string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"action":  action,
	}
	if threadID != 0 {
		payload["message_thread_id"] = threadID
	}
	return c.call(ctx, "sendChatAction", payload, nil)
}

func (c *Client) SetMessageReaction(ctx context.Context, chatID int64, messageID int, emoji string) error {
	reaction := []map[string]string{}
	if emoji != "" {
		reaction = append(reaction, map[string]string{"type": "emoji", "emoji": emoji})
	}
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction":   reaction,
	}
	return c.call(ctx, "setMessageReaction", payload, nil)
}

func (c *Client) PinChatMessage(ctx context.Context, chatID int64, messageID int) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "pinChatMessage", payload, nil)
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*types.File, error) {
	payload := map[string]interface{}{"file_id": fileID}
	var file types.File
	if err := c.call(ctx, "getFile", payload, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file %s has no download path", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewBotAPIError("getFile", resp.StatusCode, fmt.Errorf("file download failed"))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", method, err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.execute(req, method, out)
}

func (c *Client) sendFile(ctx context.Context, method, field string, chatID int64, filePath, caption, title string, opts *types.SendOptions) (*types.Message, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file content: %w", err)
	}

	_ = writer.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		_ = writer.WriteField("caption", caption)
	}
	if title != "" {
		_ = writer.WriteField("title", title)
	}
	if opts != nil {
		if opts.MessageThreadID != 0 {
			_ = writer.WriteField("message_thread_id", strconv.FormatInt(opts.MessageThreadID, 10))
		}
		if opts.ParseMode != "" {
			_ = writer.WriteField("parse_mode", opts.ParseMode)
		}
		if opts.HasSpoiler {
			_ = writer.WriteField("has_spoiler", "true")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var msg types.Message
	if err := c.execute(req, method, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) execute(req *http.Request, method string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewBotAPIError(method, 0, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if !envelope.OK {
		return &types.APIError{Code: envelope.ErrorCode, Description: envelope.Description}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func applyOptions(payload map[string]interface{}, opts *types.SendOptions) {
	if opts == nil {
		return
	}
	if opts.MessageThreadID != 0 {
		payload["message_thread_id"] = opts.MessageThreadID
	}
	if opts.ParseMode != "" {
		payload["parse_mode"] = opts.ParseMode
	}
}
