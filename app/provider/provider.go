package provider

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Customer document types accepted by the fiscal authority.
const (
	DocumentTypeCUIT          = 80
	DocumentTypeDNI           = 96
	DocumentTypeFinalConsumer = 99
)

const (
	SaleConditionCash = 1
	GoodsTypeServices = 2
)

// Amount renders as a JSON number with two decimals.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

type Authentication struct {
	Company string `json:"empresa"`
	User    string `json:"usuario"`
	Hash    string `json:"hash"`
}

type Customer struct {
	LegalName      string `json:"razonSocial"`
	DocumentType   int    `json:"tipoDocumento"`
	DocumentNumber string `json:"nroDocumento"`
	Email          string `json:"mailFacturacion,omitempty"`
	SendDocument   bool   `json:"enviarComprobante"`
}

type DocumentHeader struct {
	DocumentType      string    `json:"tipoComprobante"`
	PointOfSale       string    `json:"prefijo"`
	SaleCondition     int       `json:"condicionVenta"`
	GoodsType         int       `json:"bienes"`
	IssuedAt          time.Time `json:"fechaHora"`
	SubTotal          Amount    `json:"subTotal"`
	NetTotal          Amount    `json:"totalNeto"`
	TaxTotal          Amount    `json:"totalIva"`
	Total             Amount    `json:"total"`
	Perceptions       Amount    `json:"percepciones"`
	RelatedDocumentNo string    `json:"comprobanteAsociado,omitempty"`
}

type DocumentItem struct {
	Code      string `json:"codigo"`
	Detail    string `json:"detalle"`
	Quantity  Amount `json:"cantidad"`
	UnitPrice Amount `json:"precioUnitario"`
	TaxRate   Amount `json:"iva"`
	Taxed     bool   `json:"gravado"`
	Total     Amount `json:"total"`
}

// DocumentRequest is the "create comprobante" call for both invoices and
// credit notes.
type DocumentRequest struct {
	Auth     Authentication `json:"autenticacion"`
	Customer Customer       `json:"cliente"`
	Header   DocumentHeader `json:"encabezado"`
	Items    []DocumentItem `json:"items"`
}

type DocumentResponse struct {
	State        string   `json:"estado"`
	Messages     []string `json:"mensajes"`
	CAE          string   `json:"cae"`
	Number       string   `json:"numeroComprobante"`
	CAEExpiresAt string   `json:"fechaVencimientoCae"`
	PDFURL       string   `json:"pdfUrl"`
	Success      bool     `json:"exitoso"`
}

// Issued reports whether the provider issued the document with both a fiscal
// number and an authorization code.
func (r *DocumentResponse) Issued() bool {
	return r != nil && r.Success && strings.TrimSpace(r.Number) != "" && strings.TrimSpace(r.CAE) != ""
}

func (r *DocumentResponse) RejectionReason() string {
	if r == nil {
		return "empty provider response"
	}
	if len(r.Messages) > 0 {
		return strings.Join(r.Messages, "; ")
	}
	if r.State != "" {
		return "provider state " + r.State
	}
	return "provider did not issue the document"
}

// InvoicingProvider issues fiscal documents. A business rejection comes back
// as a response that is not Issued; transport and technical failures come
// back as errors.
type InvoicingProvider interface {
	CreateDocument(ctx context.Context, req *DocumentRequest) (*DocumentResponse, error)
}

type ReportedTransaction struct {
	ID        string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	Timestamp time.Time
}

// PaymentProcessor is the external system of record for payments.
type PaymentProcessor interface {
	Code() string
	ListPaidTransactions(ctx context.Context, tenantKey string, from, to time.Time) ([]ReportedTransaction, error)
}
