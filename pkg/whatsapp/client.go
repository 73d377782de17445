package whatsapp

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
	"strings"
	"time"

	"watgbridge/internal/errors"
	"watgbridge/pkg/whatsapp/types"
)

// Client talks to the WhatsApp gateway's REST API. Events arrive separately
// through the webhook receiver or the websocket stream.
type Client struct {
	baseURL     string
	apiKey      string
	sessionName string
	httpClient  *http.Client
	connected   func() bool
}

var _ types.WAClient = (*Client)(nil)

func NewClient(cfg types.ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		sessionName: cfg.SessionName,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// SetConnectedProbe installs the session-state probe used by Connected.
// The event stream owns connection state; the REST client only reports it.
func (c *Client) SetConnectedProbe(probe func() bool) {
	c.connected = probe
}

func (c *Client) Connected() bool {
	if c.connected == nil {
		return true
	}
	return c.connected()
}

func (c *Client) SendText(ctx context.Context, jid, text string) (*types.SendResult, error) {
	return c.postJSON(ctx, "/api/sendText", map[string]interface{}{
		"session": c.sessionName,
		"jid":     jid,
		"text":    text,
	})
}

func (c *Client) SendImage(ctx context.Context, jid, imagePath, caption string, viewOnce bool) (*types.SendResult, error) {
	return c.postMedia(ctx, "/api/sendImage", jid, imagePath, map[string]string{
		"caption":  caption,
		"viewOnce": boolField(viewOnce),
	})
}

func (c *Client) SendVideo(ctx context.Context, jid, videoPath, caption string, opts types.VideoOptions) (*types.SendResult, error) {
	return c.postMedia(ctx, "/api/sendVideo", jid, videoPath, map[string]string{
		"caption":     caption,
		"ptv":         boolField(opts.VideoNote),
		"gifPlayback": boolField(opts.GifPlayback),
		"viewOnce":    boolField(opts.ViewOnce),
	})
}

func (c *Client) SendAudio(ctx context.Context, jid, audioPath string, voiceNote bool) (*types.SendResult, error) {
	return c.postMedia(ctx, "/api/sendAudio", jid, audioPath, map[string]string{
		"ptt": boolField(voiceNote),
	})
}

func (c *Client) SendDocument(ctx context.Context, jid, docPath, fileName, caption string) (*types.SendResult, error) {
	return c.postMedia(ctx, "/api/sendDocument", jid, docPath, map[string]string{
		"fileName": fileName,
		"caption":  caption,
	})
}

func (c *Client) SendSticker(ctx context.Context, jid, stickerPath string) (*types.SendResult, error) {
	return c.postMedia(ctx, "/api/sendSticker", jid, stickerPath, nil)
}

func (c *Client) SendLocation(ctx context.Context, jid string, latitude, longitude float64) (*types.SendResult, error) {
	return c.postJSON(ctx, "/api/sendLocation", map[string]interface{}{
		"session":   c.sessionName,
		"jid":       jid,
		"latitude":  latitude,
		"longitude": longitude,
	})
}

func (c *Client) SendContact(ctx context.Context, jid, displayName, vcard string) (*types.SendResult, error) {
	return c.postJSON(ctx, "/api/sendContact", map[string]interface{}{
		"session":     c.sessionName,
		"jid":         jid,
		"displayName": displayName,
		"vcard":       vcard,
	})
}

func (c *Client) DownloadContent(ctx context.Context, ref *types.MediaRef) ([]byte, error) {
	if ref == nil || ref.URL == "" {
		return nil, fmt.Errorf("media reference has no download URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(fmt.Errorf("status %d", resp.StatusCode), errors.ErrCodeMediaDownload, "content download failed")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content body: %w", err)
	}
	return data, nil
}

func (c *Client) GroupMetadata(ctx context.Context, jid string) (*types.GroupMetadata, error) {
	var meta types.GroupMetadata
	if err := c.getJSON(ctx, "/api/groupMetadata?jid="+jid, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	if err := c.getJSON(ctx, "/api/profilePicture?jid="+jid, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

func (c *Client) FetchStatus(ctx context.Context, jid string) (*types.UserStatus, error) {
	var status types.UserStatus
	if err := c.getJSON(ctx, "/api/status?jid="+jid, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) ReadMessages(ctx context.Context, keys []types.MessageKey) error {
	_, err := c.postJSON(ctx, "/api/readMessages", map[string]interface{}{
		"session": c.sessionName,
		"keys":    keys,
	})
	return err
}

func (c *Client) SendPresenceUpdate(ctx context.Context, jid string, presence types.PresenceType) error {
	_, err := c.postJSON(ctx, "/api/sendPresence", map[string]interface{}{
		"session":  c.sessionName,
		"jid":      jid,
		"presence": string(presence),
	})
	return err
}

func (c *Client) FetchContacts(ctx context.Context) ([]types.ContactUpdate, error) {
	var contacts []types.ContactUpdate
	if err := c.getJSON(ctx, "/api/contacts", &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *Client) FetchChats(ctx context.Context) ([]types.ChatListEntry, error) {
	var chats []types.ChatListEntry
	if err := c.getJSON(ctx, "/api/chats", &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) (*types.SendResult, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.doSend(req, endpoint)
}

func (c *Client) postMedia(ctx context.Context, endpoint, jid, mediaPath string, fields map[string]string) (*types.SendResult, error) {
	file, err := os.Open(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(mediaPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file content: %w", err)
	}

	_ = writer.WriteField("session", c.sessionName)
	_ = writer.WriteField("jid", jid)
	for k, v := range fields {
		if v != "" {
			_ = writer.WriteField(k, v)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	return c.doSend(req, endpoint)
}

func (c *Client) doSend(req *http.Request, endpoint string) (*types.SendResult, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, errors.NewGatewayError(endpoint, resp.StatusCode, fmt.Errorf("%s", apiErr.Error))
	}

	var result types.SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Query strings can carry JIDs; keep them out of error context.
		path := endpoint
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return errors.NewGatewayError(path, resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

func boolField(v bool) string {
	if v {
		return "true"
	}
	return ""
}
