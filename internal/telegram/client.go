// Package telegram carries the thin Bot API client behind the platform
// contracts the engine consumes: sending reply actions and fetching uploaded
// files. The engine itself never sees Telegram wire formats.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/krizar/koboldbot/internal/engine"
	"github.com/krizar/koboldbot/internal/logging"
)

type Client struct {
	token      string
	apiBase    string
	fileBase   string
	httpClient *http.Client
	log        logging.Logger
}

func NewClient(token string, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		token:      token,
		apiBase:    "https://api.telegram.org",
		fileBase:   "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type replyKeyboard struct {
	Keyboard       [][]string `json:"keyboard,omitempty"`
	OneTime        bool       `json:"one_time_keyboard"`
	ResizeKeyboard bool       `json:"resize_keyboard"`
}

type removeKeyboard struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

type sendMessageReq struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Send delivers one engine action as a sendMessage call.
func (c *Client) Send(ctx context.Context, act engine.Action) error {
	req := sendMessageReq{
		ChatID:    act.ChatID,
		Text:      act.Text,
		ParseMode: act.ParseMode,
	}
	if act.Keyboard != nil {
		if act.Keyboard.Remove {
			req.ReplyMarkup = removeKeyboard{RemoveKeyboard: true}
		} else {
			req.ReplyMarkup = replyKeyboard{
				Keyboard:       act.Keyboard.Rows,
				ResizeKeyboard: true,
			}
		}
	}

	_, err := c.call(ctx, "sendMessage", req)
	return err
}

type fileInfo struct {
	FilePath string `json:"file_path"`
}

// Fetch resolves a file ID to its storage path and downloads the bytes.
func (c *Client) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	raw, err := c.call(ctx, "getFile?file_id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return nil, err
	}

	var info fileInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("telegram: decode getFile result: %w", err)
	}
	if info.FilePath == "" {
		return nil, errors.New("telegram: file path not found")
	}

	dlURL := fmt.Sprintf("%s/file/bot%s/%s", c.fileBase, c.token, info.FilePath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, dlURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) call(ctx context.Context, method string, body any) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("telegram: %s: decode: %w", method, err)
	}
	if !decoded.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, decoded.Description)
	}
	return decoded.Result, nil
}
