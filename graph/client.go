package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://graph.facebook.com/v20.0"

// Client fala com a WhatsApp Business Cloud API (graph.facebook.com).
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *APIError `json:"error,omitempty"`
}

// APIError é o envelope de erro padrão da Graph API.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FbTraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph: %s (code %d)", e.Message, e.Code)
}

// SendResult carrega o que o dispatcher precisa para decidir status e ritmo.
type SendResult struct {
	MessageID   string
	StatusCode  int
	RateLimited bool
}

func (c *Client) post(ctx context.Context, token, path string, payload any) (SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return SendResult{StatusCode: resp.StatusCode}, err
	}

	res := SendResult{
		StatusCode:  resp.StatusCode,
		RateLimited: resp.StatusCode == http.StatusTooManyRequests,
	}
	if len(out.Messages) > 0 {
		res.MessageID = out.Messages[0].ID
	}
	// código 130429 = rate limit no nível da WABA, vem com HTTP 400
	if out.Error != nil {
		if out.Error.Code == 130429 || out.Error.Code == 80007 {
			res.RateLimited = true
		}
		return res, out.Error
	}
	if res.MessageID == "" {
		return res, fmt.Errorf("graph: no message id in response (http %d)", resp.StatusCode)
	}
	return res, nil
}

// SendText envia uma mensagem de texto livre (janela de 24h).
func (c *Client) SendText(ctx context.Context, token, phoneNumberID, to, body string) (SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return c.post(ctx, token, "/"+phoneNumberID+"/messages", payload)
}

// SendTemplate envia um template aprovado, usado pelas campanhas.
func (c *Client) SendTemplate(ctx context.Context, token, phoneNumberID, to, template, lang string) (SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":     template,
			"language": map[string]any{"code": lang},
		},
	}
	return c.post(ctx, token, "/"+phoneNumberID+"/messages", payload)
}

// PhoneNumberInfo valida um par (token, phone_number_id) no registro de conexões.
type PhoneNumberInfo struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
}

func (c *Client) GetPhoneNumber(ctx context.Context, token, phoneNumberID string) (PhoneNumberInfo, error) {
	var info PhoneNumberInfo
	err := c.getJSON(ctx, token, "/"+phoneNumberID, &info)
	return info, err
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Error    *APIError
}

// MediaURL resolve a URL temporária de download de uma mídia recebida.
func (c *Client) MediaURL(ctx context.Context, token, mediaID string) (url, mimeType string, err error) {
	var info mediaInfo
	if err := c.getJSON(ctx, token, "/"+mediaID, &info); err != nil {
		return "", "", err
	}
	return info.URL, info.MimeType, nil
}

// DownloadMedia baixa os bytes de uma URL de mídia (exige o mesmo token).
func (c *Client) DownloadMedia(ctx context.Context, token, mediaURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("graph: media download status %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error *APIError `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != nil {
			return e.Error
		}
		return fmt.Errorf("graph: bad status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
