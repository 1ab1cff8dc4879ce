/**
 * @description
 * This package provides a client for the Flutterwave payments API. It
 * encapsulates the logic for making authenticated HTTP requests, handling
 * request body construction, and parsing responses.
 *
 * Amounts cross this boundary in kobo; Flutterwave's API speaks naira, so
 * the conversion happens here and nowhere else.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flashbot/wallet-service/internal/domain"
)

// Normalized payment states returned by VerifyByReference.
const (
	PaymentSuccessful = "successful"
	PaymentFailed     = "failed"
	PaymentPending    = "pending"
)

// Client is a client for the Flutterwave v3 API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Flutterwave API client.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.flutterwave.com/v3"
	}
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// VirtualAccountRequest is the input for creating a one-off collection account.
type VirtualAccountRequest struct {
	Reference string
	Amount    int64 // kobo
	Email     string
	Narration string
}

// VirtualAccount is the account a customer should pay into.
type VirtualAccount struct {
	AccountNumber string
	AccountName   string
	BankName      string
	Reference     string
}

// PaymentLinkRequest is the input for creating a hosted checkout page.
type PaymentLinkRequest struct {
	Reference string
	Amount    int64 // kobo
	Email     string
	Title     string
}

// PaymentStatus is the normalized result of verifying a payment reference.
type PaymentStatus struct {
	Reference  string
	Status     string // successful | failed | pending
	AmountPaid int64  // kobo
}

// ResolvedAccount is the owner of an external bank account.
type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// ErrorResponse represents an error envelope from the Flutterwave API.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("flutterwave api error: %s", e.Message)
	}
	return "unknown flutterwave api error"
}

func koboToNaira(kobo int64) float64 {
	return float64(kobo) / 100.0
}

func nairaToKobo(naira float64) int64 {
	return int64(naira*100.0 + 0.5)
}

// CreateVirtualAccount asks Flutterwave for a temporary virtual account tied
// to the reference. The customer pays by bank transfer into it.
func (c *Client) CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error) {
	payload := map[string]interface{}{
		"tx_ref":       req.Reference,
		"amount":       koboToNaira(req.Amount),
		"email":        req.Email,
		"currency":     "NGN",
		"is_permanent": false,
		"narration":    req.Narration,
	}

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			AccountNumber string `json:"account_number"`
			BankName      string `json:"bank_name"`
			Note          string `json:"note"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/virtual-account-numbers", payload, &envelope); err != nil {
		return nil, err
	}

	return &VirtualAccount{
		AccountNumber: envelope.Data.AccountNumber,
		AccountName:   envelope.Data.Note,
		BankName:      envelope.Data.BankName,
		Reference:     req.Reference,
	}, nil
}

// CreatePaymentLink creates a hosted checkout page and returns its URL.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (string, error) {
	payload := map[string]interface{}{
		"tx_ref":   req.Reference,
		"amount":   koboToNaira(req.Amount),
		"currency": "NGN",
		"customer": map[string]string{"email": req.Email},
		"customizations": map[string]string{
			"title": req.Title,
		},
	}

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments", payload, &envelope); err != nil {
		return "", err
	}
	if envelope.Data.Link == "" {
		return "", fmt.Errorf("flutterwave returned no payment link for %s", req.Reference)
	}
	return envelope.Data.Link, nil
}

// VerifyByReference resolves the state of a payment by its tx_ref. Statuses
// outside successful/failed are reported as pending.
func (c *Client) VerifyByReference(ctx context.Context, reference string) (*PaymentStatus, error) {
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			TxRef    string  `json:"tx_ref"`
			Status   string  `json:"status"`
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}

	status := PaymentPending
	switch envelope.Data.Status {
	case "successful":
		status = PaymentSuccessful
	case "failed":
		status = PaymentFailed
	}

	return &PaymentStatus{
		Reference:  envelope.Data.TxRef,
		Status:     status,
		AmountPaid: nairaToKobo(envelope.Data.Amount),
	}, nil
}

// ListBanks fetches the directory of Nigerian banks.
func (c *Client) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	var envelope struct {
		Status string `json:"status"`
		Data   []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/banks/NG", nil, &envelope); err != nil {
		return nil, err
	}

	banks := make([]domain.Bank, 0, len(envelope.Data))
	for _, b := range envelope.Data {
		banks = append(banks, domain.Bank{Code: b.Code, Name: b.Name})
	}
	return banks, nil
}

// ResolveAccount looks up the registered owner of a bank account.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	payload := map[string]string{
		"account_number": accountNumber,
		"account_bank":   bankCode,
	}

	var envelope struct {
		Status string          `json:"status"`
		Data   ResolvedAccount `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/accounts/resolve", payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("flutterwave api returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
