package types

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type Transaction struct {
	TenantId           string `json:"tenant_id"`
	ExternalId         string `json:"external_id"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	Status             string `json:"status"`
	BillingStatus      string `json:"billing_status"`
	BillingError       string `json:"billing_error,omitempty"`
	InvoiceNumber      string `json:"invoice_number,omitempty"`
	Cae                string `json:"cae,omitempty"`
	InvoicePdfUrl      string `json:"invoice_pdf_url,omitempty"`
	CreditNoteNumber   string `json:"credit_note_number,omitempty"`
	CreditNoteStatus   string `json:"credit_note_status,omitempty"`
	CreditNoteStrategy string `json:"credit_note_strategy,omitempty"`
	RefundReason       string `json:"refund_reason,omitempty"`
	Reconciled         bool   `json:"reconciled"`
	UpdatedAt          string `json:"updated_at"`
}

type TransactionResponse struct {
	Transaction *Transaction `json:"transaction"`
	Error       string       `json:"error,omitempty"`
}

type CreditNote struct {
	TransactionId    uint64 `json:"transaction_id"`
	Status           string `json:"status"`
	Strategy         string `json:"strategy"`
	RefundReason     string `json:"refund_reason"`
	Amount           string `json:"amount"`
	CreditNoteNumber string `json:"credit_note_number,omitempty"`
	Cae              string `json:"cae,omitempty"`
	PdfUrl           string `json:"pdf_url,omitempty"`
	UpdatedAt        string `json:"updated_at"`
}

type CreditNoteResponse struct {
	CreditNote *CreditNote `json:"credit_note"`
	Error      string      `json:"error,omitempty"`
}

type ReconcileResponse struct {
	TenantId    string            `json:"tenant_id"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Reported    int               `json:"reported"`
	Orphans     int               `json:"orphans"`
	Processed   int               `json:"processed"`
	Errors      map[string]string `json:"errors"`
	SuccessRate string            `json:"success_rate"`
	Partial     bool              `json:"partial"`
}
