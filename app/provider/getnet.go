package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
)

const (
	GetnetCode = "getnet"

	getnetReportPath  = "/v1/reports/transactions"
	getnetReportDate  = "2006-01-02"
	getnetReportPaid  = "PAID"
	getnetSellerIDHdr = "seller_id"
)

var (
	errGetnetUnauthorized = errors.New("getnet rejected the access token")

	getnetLogger = factory.NewModuleLogger("getnet")
)

type GetnetConfig struct {
	APIURL      string
	SellerID    string
	HTTPTimeout time.Duration
}

type GetnetProcessor struct {
	cfg    GetnetConfig
	client *http.Client
	tokens *TokenSource
}

func NewGetnetProcessor(cfg GetnetConfig, tokens *TokenSource) *GetnetProcessor {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &GetnetProcessor{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		tokens: tokens,
	}
}

func (p *GetnetProcessor) Code() string {
	return GetnetCode
}

// ListPaidTransactions reads the merchant report for [from, to]. An expired
// token is renewed once.
func (p *GetnetProcessor) ListPaidTransactions(ctx context.Context, tenantKey string, from, to time.Time) ([]ReportedTransaction, error) {
	items, err := p.fetchReport(ctx, tenantKey, from, to)
	if errors.Is(err, errGetnetUnauthorized) {
		p.tokens.Invalidate(tenantKey)
		items, err = p.fetchReport(ctx, tenantKey, from, to)
	}
	return items, err
}

func (p *GetnetProcessor) fetchReport(ctx context.Context, tenantKey string, from, to time.Time) ([]ReportedTransaction, error) {
	token, err := p.tokens.Token(ctx, tenantKey)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("start_date", from.UTC().Format(getnetReportDate))
	query.Set("end_date", to.UTC().Format(getnetReportDate))
	query.Set("status", getnetReportPaid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIURL+getnetReportPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if p.cfg.SellerID != "" {
		req.Header.Set(getnetSellerIDHdr, p.cfg.SellerID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getnet report request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errGetnetUnauthorized
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("getnet report request failed: status=%d body=%s", resp.StatusCode, truncateBody(body))
	}

	return parseGetnetReport(body)
}

type getnetReportRow struct {
	ID            json.RawMessage `json:"id"`
	TransactionID json.RawMessage `json:"transaction_id"`
	PaymentID     json.RawMessage `json:"payment_id"`
	Status        string          `json:"status"`
	Amount        json.RawMessage `json:"amount"`
	Currency      string          `json:"currency"`
	Timestamp     string          `json:"timestamp"`
	CreatedAt     string          `json:"created_at"`
}

// parseGetnetReport accepts a bare array or an object wrapping the rows under
// "transactions", "data" or "content".
func parseGetnetReport(body []byte) ([]ReportedTransaction, error) {
	var rows []getnetReportRow
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode getnet report: %w", err)
		}
	} else {
		var envelope struct {
			Transactions []getnetReportRow `json:"transactions"`
			Data         []getnetReportRow `json:"data"`
			Content      []getnetReportRow `json:"content"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode getnet report: %w", err)
		}
		switch {
		case len(envelope.Transactions) > 0:
			rows = envelope.Transactions
		case len(envelope.Data) > 0:
			rows = envelope.Data
		default:
			rows = envelope.Content
		}
	}

	items := make([]ReportedTransaction, 0, len(rows))
	for _, row := range rows {
		id := firstRawString(row.ID, row.TransactionID, row.PaymentID)
		if id == "" {
			continue
		}
		amount, err := decimalFromRaw(row.Amount)
		if err != nil {
			getnetLogger.WithError(err).WithFields(logrus.Fields{
				"external_id": id,
				"amount":      string(row.Amount),
			}).Warn("skipping getnet report row with unparsable amount")
			continue
		}
		items = append(items, ReportedTransaction{
			ID:        id,
			Status:    strings.ToUpper(strings.TrimSpace(row.Status)),
			Amount:    amount,
			Currency:  strings.ToUpper(strings.TrimSpace(row.Currency)),
			Timestamp: parseReportTime(row.Timestamp, row.CreatedAt),
		})
	}
	return items, nil
}

func firstRawString(values ...json.RawMessage) string {
	for _, raw := range values {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func decimalFromRaw(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decimal.NewFromString(strings.TrimSpace(s))
	}
	return decimal.NewFromString(string(raw))
}

func parseReportTime(values ...string) time.Time {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", getnetReportDate} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Time{}
}
