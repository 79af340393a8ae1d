package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIBase = "https://pay.crypt.bot/api"
	DefaultAsset   = "USDT"

	tokenHeader    = "Crypto-Pay-API-Token"
	requestTimeout = 15 * time.Second
)

var ErrInvalidAmount = errors.New("invoice amount must be positive")

// CryptoPayClient talks to the Crypto Pay HTTP API.
type CryptoPayClient struct {
	token   string
	asset   string
	apiBase string
	http    *http.Client
}

var _ Gateway = (*CryptoPayClient)(nil)

func NewCryptoPayClient(token, asset, apiBase string) *CryptoPayClient {
	if asset == "" {
		asset = DefaultAsset
	}
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &CryptoPayClient{
		token:   token,
		asset:   asset,
		apiBase: apiBase,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type invoicePayload struct {
	InvoiceID   int64   `json:"invoice_id"`
	PayURL      string  `json:"pay_url"`
	Amount      float64 `json:"amount,string"`
	Asset       string  `json:"asset"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
	Payload     string  `json:"payload"`
}

func (p invoicePayload) toInvoice() *GatewayInvoice {
	return &GatewayInvoice{
		ID:          p.InvoiceID,
		PayURL:      p.PayURL,
		Amount:      p.Amount,
		Asset:       p.Asset,
		Status:      p.Status,
		Description: p.Description,
		Payload:     p.Payload,
	}
}

func (c *CryptoPayClient) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*GatewayInvoice, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	asset := req.Asset
	if asset == "" {
		asset = c.asset
	}
	body := map[string]any{
		"amount":      math.Round(req.Amount*100) / 100,
		"asset":       asset,
		"description": req.Description,
	}
	if req.Payload != "" {
		body["payload"] = req.Payload
	}

	var result invoicePayload
	if err := c.call(ctx, "createInvoice", body, &result); err != nil {
		return nil, err
	}
	return result.toInvoice(), nil
}

func (c *CryptoPayClient) GetInvoice(ctx context.Context, invoiceID int64) (*GatewayInvoice, error) {
	body := map[string]any{"invoice_ids": []int64{invoiceID}}

	var raw json.RawMessage
	if err := c.call(ctx, "getInvoices", body, &raw); err != nil {
		return nil, err
	}

	// The API has shipped both a bare list and an object with an items list.
	var list []invoicePayload
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Items []invoicePayload `json:"items"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, &GatewayError{Message: "unexpected getInvoices response shape"}
		}
		list = wrapped.Items
	}
	if len(list) == 0 {
		return nil, &GatewayError{Message: fmt.Sprintf("invoice %d not found", invoiceID)}
	}
	return list[0].toInvoice(), nil
}

func (c *CryptoPayClient) call(ctx context.Context, method string, body map[string]any, result any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return &GatewayError{Message: "failed to encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(encoded))
	if err != nil {
		return &GatewayError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &GatewayError{Message: "failed to contact Crypto Pay", Err: err}
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		ErrorField  json.RawMessage `json:"error"`
		Description string          `json:"description"`
		Message     string          `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &GatewayError{Message: "unexpected response from Crypto Pay", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.OK {
		message := extractErrorMessage(envelope.ErrorField, envelope.Description, envelope.Message)
		if message == "" {
			if resp.StatusCode >= http.StatusBadRequest {
				message = fmt.Sprintf("HTTP error %d", resp.StatusCode)
			} else {
				message = "Crypto Pay request failed"
			}
		}
		return &GatewayError{Message: message}
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return &GatewayError{Message: "failed to decode result", Err: err}
		}
	}
	return nil
}

// extractErrorMessage returns the most helpful message a gateway response
// carries, preferring the error field, then description, then message.
func extractErrorMessage(rawError json.RawMessage, description, message string) string {
	if len(rawError) > 0 {
		var s string
		if err := json.Unmarshal(rawError, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(rawError, &obj); err == nil && strings.TrimSpace(obj.Name) != "" {
			return obj.Name
		}
	}
	if strings.TrimSpace(description) != "" {
		return description
	}
	if strings.TrimSpace(message) != "" {
		return message
	}
	return ""
}
