package striperepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/KittNeKit/BookWise/util/httpx"
)

const baseURL = "https://api.stripe.com/v1/checkout/sessions"

type httpRepo struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewHTTP(apiKey string) Repo {
	return &httpRepo{apiKey: apiKey, baseURL: baseURL, client: httpx.Client()}
}

// NewHTTPWithBase points the client at a non-default endpoint (tests).
func NewHTTPWithBase(apiKey, base string) Repo {
	return &httpRepo{apiKey: apiKey, baseURL: base, client: httpx.Client()}
}

func (r *httpRepo) CreateSession(ctx context.Context, req CreateSessionReq) (*Session, error) {
	// Stripe takes form-encoded bodies.
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][product_data][name]", req.Name)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("line_items[0][quantity]", "1")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(r.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return r.do(httpReq)
}

func (r *httpRepo) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(r.apiKey, "")

	return r.do(httpReq)
}

func (r *httpRepo) do(req *http.Request) (*Session, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe checkout session failed: %s", resp.Status)
	}

	var out struct {
		ID            string `json:"id"`
		URL           string `json:"url"`
		AmountTotal   int64  `json:"amount_total"`
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("stripe: empty session id")
	}

	return &Session{
		ID:            out.ID,
		URL:           out.URL,
		AmountTotal:   out.AmountTotal,
		PaymentStatus: out.PaymentStatus,
	}, nil
}
