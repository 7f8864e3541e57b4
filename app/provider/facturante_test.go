package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocumentRequest() *DocumentRequest {
	total := decimal.RequireFromString("121")
	net := decimal.RequireFromString("100")
	return &DocumentRequest{
		Auth:     Authentication{Company: "acme", User: "api", Hash: "h"},
		Customer: Customer{LegalName: "Consumidor Final", DocumentType: DocumentTypeFinalConsumer, DocumentNumber: "00000000000"},
		Header: DocumentHeader{
			DocumentType:  "FB",
			PointOfSale:   "0001",
			SaleCondition: SaleConditionCash,
			GoodsType:     GoodsTypeServices,
			IssuedAt:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			SubTotal:      NewAmount(net),
			NetTotal:      NewAmount(net),
			TaxTotal:      NewAmount(total.Sub(net)),
			Total:         NewAmount(total),
		},
		Items: []DocumentItem{{
			Code:      "GETNET-1",
			Detail:    "Venta POS Getnet #1",
			Quantity:  NewAmount(decimal.NewFromInt(1)),
			UnitPrice: NewAmount(total),
			TaxRate:   NewAmount(decimal.NewFromInt(21)),
			Taxed:     true,
			Total:     NewAmount(total),
		}},
	}
}

func TestFacturanteCreateDocumentIssued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, facturanteCreatePath, r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		header := body["encabezado"].(map[string]interface{})
		assert.Equal(t, "FB", header["tipoComprobante"])
		assert.Equal(t, 121.0, header["total"])

		_, _ = w.Write([]byte(`{"estado":"Aprobado","mensajes":[],"cae":"12345678901234","numeroComprobante":"0001-00000001","fechaVencimientoCae":"2024-05-11","pdfUrl":"https://example.test/1.pdf","exitoso":true}`))
	}))
	defer srv.Close()

	p := NewFacturanteProvider(FacturanteConfig{BaseURL: srv.URL + "/"})
	resp, err := p.CreateDocument(context.Background(), sampleDocumentRequest())
	require.NoError(t, err)
	assert.True(t, resp.Issued())
	assert.Equal(t, "0001-00000001", resp.Number)
}

func TestFacturanteCreateDocumentRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"estado":"Rechazado","mensajes":["CUIT invalido"],"exitoso":false}`))
	}))
	defer srv.Close()

	resp, err := NewFacturanteProvider(FacturanteConfig{BaseURL: srv.URL}).CreateDocument(context.Background(), sampleDocumentRequest())
	require.NoError(t, err)
	assert.False(t, resp.Issued())
	assert.Equal(t, "CUIT invalido", resp.RejectionReason())
}

func TestFacturanteCreateDocumentTechnicalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFacturanteProvider(FacturanteConfig{BaseURL: srv.URL}).CreateDocument(context.Background(), sampleDocumentRequest())
	require.Error(t, err)

	_, err = NewFacturanteProvider(FacturanteConfig{}).CreateDocument(context.Background(), sampleDocumentRequest())
	require.Error(t, err)
}

func TestSandboxProviderIssuesSequentialDocuments(t *testing.T) {
	p := NewSandboxProvider()
	p.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	first, err := p.CreateDocument(context.Background(), sampleDocumentRequest())
	require.NoError(t, err)
	second, err := p.CreateDocument(context.Background(), sampleDocumentRequest())
	require.NoError(t, err)

	assert.True(t, first.Issued())
	assert.Equal(t, "SBX-0001-00000001", first.Number)
	assert.Equal(t, "SBX-0001-00000002", second.Number)
	assert.Len(t, first.CAE, 14)
	assert.Equal(t, "2024-05-11", first.CAEExpiresAt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.CreateDocument(ctx, sampleDocumentRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAmountMarshalsWithTwoDecimals(t *testing.T) {
	raw, err := json.Marshal(NewAmount(decimal.RequireFromString("10.5")))
	require.NoError(t, err)
	assert.Equal(t, "10.50", string(raw))
}
