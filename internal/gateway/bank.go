package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
)

const maxBankResponseBytes = 1 << 20

// BankAdapter talks to a bank gateway's JSON API:
//
//	POST {base}/payment/request       -> {token, tracking_code}
//	GET  {base}/payment/inquiry/{tc}  -> {tracking_code, amount, status}
//	POST {base}/payment/verify        -> {tracking_code, status, reference_id}
//
// The payer is redirected with a form POST of the token to {base}/payment/start.
type BankAdapter struct {
	baseURL    string
	merchantID string
	apiKey     string
	httpClient *http.Client
}

func NewBankAdapter(cfg *models.GatewayConfig, httpClient *http.Client) (*BankAdapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: gateway config is required", ErrGatewayUnavailable)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid base url for %s: %v", ErrGatewayUnavailable, cfg.Name, err)
	}
	if cfg.MerchantID == "" {
		return nil, fmt.Errorf("%w: merchant id missing for %s", ErrGatewayUnavailable, cfg.Name)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BankAdapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

type bankRequestBody struct {
	MerchantID  string `json:"merchant_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url"`
	Mobile      string `json:"mobile,omitempty"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
	OrderID     string `json:"order_id"`
}

type bankRequestResponse struct {
	Token        string `json:"token"`
	TrackingCode string `json:"tracking_code"`
}

func (b *BankAdapter) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	body := bankRequestBody{
		MerchantID:  b.merchantID,
		Amount:      req.Currency.MinorUnits(req.Amount),
		Currency:    string(req.Currency),
		CallbackURL: req.CallbackURL,
		Mobile:      req.PayerPhone,
		Email:       req.PayerEmail,
		Description: req.Description,
		OrderID:     req.PaymentID.String(),
	}

	var out bankRequestResponse
	raw, err := b.do(ctx, http.MethodPost, "/payment/request", body, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" || out.TrackingCode == "" {
		return nil, fmt.Errorf("%w: gateway returned no token or tracking code", ErrGatewayUnavailable)
	}

	return &Initiation{
		Token:        out.Token,
		TrackingCode: out.TrackingCode,
		RedirectURL:  b.baseURL + "/payment/start",
		Method:       http.MethodPost,
		Params:       map[string]string{"token": out.Token},
		Raw:          raw,
	}, nil
}

type bankRecordResponse struct {
	TrackingCode string `json:"tracking_code"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
	ReferenceID  string `json:"reference_id"`
}

func (b *BankAdapter) Lookup(ctx context.Context, trackingCode string) (*Record, error) {
	var out bankRecordResponse
	raw, err := b.do(ctx, http.MethodGet, "/payment/inquiry/"+url.PathEscape(trackingCode), nil, &out)
	if err != nil {
		return nil, err
	}
	if out.TrackingCode != trackingCode {
		return nil, fmt.Errorf("%w: inquiry answered for %q", ErrVerificationFailed, out.TrackingCode)
	}
	return &Record{
		TrackingCode: out.TrackingCode,
		AmountMinor:  out.Amount,
		Status:       out.Status,
		Raw:          raw,
	}, nil
}

func (b *BankAdapter) Verify(ctx context.Context, trackingCode string, amount decimal.Decimal, currency models.Currency) (*Verification, error) {
	body := map[string]any{
		"merchant_id":   b.merchantID,
		"tracking_code": trackingCode,
		"amount":        currency.MinorUnits(amount),
	}

	var out bankRecordResponse
	raw, err := b.do(ctx, http.MethodPost, "/payment/verify", body, &out)
	if err != nil {
		return nil, err
	}
	if out.TrackingCode != trackingCode {
		return nil, fmt.Errorf("%w: verification answered for %q", ErrVerificationFailed, out.TrackingCode)
	}
	if out.Status == "" {
		return nil, fmt.Errorf("%w: verification carried no status", ErrVerificationFailed)
	}

	return &Verification{
		Success:     strings.EqualFold(out.Status, "success"),
		Status:      out.Status,
		ReferenceID: out.ReferenceID,
		Raw:         raw,
	}, nil
}

// do sends a JSON request and decodes the reply into out. The decoded reply is
// also returned as a generic map for the transaction log.
func (b *BankAdapter) do(ctx context.Context, method, path string, body any, out any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBankResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTransactionNotFound
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrGatewayUnavailable, method, path, resp.StatusCode)
	}

	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrGatewayUnavailable, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: unexpected response shape: %v", ErrGatewayUnavailable, err)
	}
	return raw, nil
}
