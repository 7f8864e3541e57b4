package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
	"github.com/vibast-solutions/ms-go-billing-connector/app/repository"
	"github.com/vibast-solutions/ms-go-billing-connector/app/security"
	"github.com/vibast-solutions/ms-go-billing-connector/app/transformer"
	"github.com/vibast-solutions/ms-go-billing-connector/config"
)

type fakeTxRepo struct {
	mu     sync.Mutex
	items  map[string]*entity.Transaction
	nextID uint64
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{items: map[string]*entity.Transaction{}, nextID: 1}
}

func txKey(tenantID uuid.UUID, externalID string) string {
	return tenantID.String() + "/" + externalID
}

func (r *fakeTxRepo) Upsert(_ context.Context, tx *entity.Transaction) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := txKey(tx.TenantID, tx.ExternalID)
	current, ok := r.items[key]
	if !ok {
		copyItem := *tx
		copyItem.ID = r.nextID
		r.nextID++
		r.items[key] = &copyItem
		out := copyItem
		return &out, nil
	}

	current.Amount = tx.Amount
	current.Currency = tx.Currency
	current.Status = tx.Status
	if tx.CustomerDoc != nil {
		current.CustomerDoc = tx.CustomerDoc
	}
	if tx.CustomerName != nil {
		current.CustomerName = tx.CustomerName
	}
	if tx.CustomerEmail != nil {
		current.CustomerEmail = tx.CustomerEmail
	}
	if current.CapturedAt == nil {
		current.CapturedAt = tx.CapturedAt
	}
	current.UpdatedAt = tx.UpdatedAt
	out := *current
	return &out, nil
}

func (r *fakeTxRepo) Update(_ context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := txKey(tx.TenantID, tx.ExternalID)
	current, ok := r.items[key]
	if !ok || current.ID != tx.ID {
		return repository.ErrTransactionNotFound
	}
	copyItem := *tx
	r.items[key] = &copyItem
	return nil
}

func (r *fakeTxRepo) FindByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[txKey(tenantID, externalID)]
	if !ok {
		return nil, nil
	}
	out := *item
	return &out, nil
}

func (r *fakeTxRepo) ListByExternalIDs(_ context.Context, tenantID uuid.UUID, externalIDs []string) (map[string]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[string]*entity.Transaction{}
	for _, id := range externalIDs {
		if item, ok := r.items[txKey(tenantID, id)]; ok {
			copyItem := *item
			out[id] = &copyItem
		}
	}
	return out, nil
}

func (r *fakeTxRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

type fakeInvoiceRepo struct {
	items  []*entity.Invoice
	nextID uint64
}

func (r *fakeInvoiceRepo) Create(_ context.Context, invoice *entity.Invoice) error {
	r.nextID++
	invoice.ID = r.nextID
	copyItem := *invoice
	r.items = append(r.items, &copyItem)
	return nil
}

func (r *fakeInvoiceRepo) Update(_ context.Context, invoice *entity.Invoice) error {
	for i, item := range r.items {
		if item.ID == invoice.ID {
			copyItem := *invoice
			r.items[i] = &copyItem
			return nil
		}
	}
	return repository.ErrInvoiceNotFound
}

func (r *fakeInvoiceRepo) withStatus(status string) []*entity.Invoice {
	var out []*entity.Invoice
	for _, item := range r.items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out
}

type fakeCreditNoteRepo struct {
	items  map[uint64]*entity.CreditNote
	nextID uint64

	createFn func(ctx context.Context, note *entity.CreditNote) error
	findFn   func(ctx context.Context, transactionID uint64) (*entity.CreditNote, error)
}

func newFakeCreditNoteRepo() *fakeCreditNoteRepo {
	return &fakeCreditNoteRepo{items: map[uint64]*entity.CreditNote{}}
}

func (r *fakeCreditNoteRepo) Create(ctx context.Context, note *entity.CreditNote) error {
	if r.createFn != nil {
		return r.createFn(ctx, note)
	}
	if _, ok := r.items[note.TransactionID]; ok {
		return repository.ErrCreditNoteAlreadyExists
	}
	r.nextID++
	note.ID = r.nextID
	copyItem := *note
	r.items[note.TransactionID] = &copyItem
	return nil
}

func (r *fakeCreditNoteRepo) Update(_ context.Context, note *entity.CreditNote) error {
	if _, ok := r.items[note.TransactionID]; !ok {
		return repository.ErrCreditNoteNotFound
	}
	copyItem := *note
	r.items[note.TransactionID] = &copyItem
	return nil
}

func (r *fakeCreditNoteRepo) FindByTransactionID(ctx context.Context, transactionID uint64) (*entity.CreditNote, error) {
	if r.findFn != nil {
		return r.findFn(ctx, transactionID)
	}
	item, ok := r.items[transactionID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

type fakeEventRepo struct {
	items  map[string]*entity.WebhookEvent
	nextID uint64

	createFn     func(ctx context.Context, event *entity.WebhookEvent) error
	findByHashFn func(ctx context.Context, tenantID uuid.UUID, eventHash string) (*entity.WebhookEvent, error)
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{items: map[string]*entity.WebhookEvent{}}
}

func (r *fakeEventRepo) Create(ctx context.Context, event *entity.WebhookEvent) error {
	if r.createFn != nil {
		return r.createFn(ctx, event)
	}
	key := txKey(event.TenantID, event.EventHash)
	if _, ok := r.items[key]; ok {
		return repository.ErrWebhookEventAlreadyExists
	}
	r.nextID++
	event.ID = r.nextID
	copyItem := *event
	r.items[key] = &copyItem
	return nil
}

func (r *fakeEventRepo) FindByHash(ctx context.Context, tenantID uuid.UUID, eventHash string) (*entity.WebhookEvent, error) {
	if r.findByHashFn != nil {
		return r.findByHashFn(ctx, tenantID, eventHash)
	}
	item, ok := r.items[txKey(tenantID, eventHash)]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeEventRepo) byID(id uint64) *entity.WebhookEvent {
	for _, item := range r.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (r *fakeEventRepo) MarkProcessed(_ context.Context, id uint64, now time.Time) error {
	item := r.byID(id)
	if item == nil {
		return fmt.Errorf("event %d not found", id)
	}
	item.Processed = true
	item.Error = nil
	item.UpdatedAt = now
	return nil
}

func (r *fakeEventRepo) RecordError(_ context.Context, id uint64, message string, now time.Time) error {
	item := r.byID(id)
	if item == nil {
		return fmt.Errorf("event %d not found", id)
	}
	item.Error = &message
	item.UpdatedAt = now
	return nil
}

func (r *fakeEventRepo) processedCount() int {
	n := 0
	for _, item := range r.items {
		if item.Processed {
			n++
		}
	}
	return n
}

type fakeSettingsRepo struct {
	items []*entity.BillingSettings
}

func (r *fakeSettingsRepo) FindByTenantID(_ context.Context, tenantID uuid.UUID) (*entity.BillingSettings, error) {
	for _, item := range r.items {
		if item.TenantID == tenantID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeSettingsRepo) FindByWebhookTenantSecret(_ context.Context, secret string) (*entity.BillingSettings, error) {
	for _, item := range r.items {
		if item.WebhookTenantSecret == secret {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeSettingsRepo) ListActive(_ context.Context) ([]*entity.BillingSettings, error) {
	var out []*entity.BillingSettings
	for _, item := range r.items {
		if item.Active {
			copyItem := *item
			out = append(out, &copyItem)
		}
	}
	return out, nil
}

type fakeLogRepo struct {
	items []*entity.ReconciliationLog
}

func (r *fakeLogRepo) Create(_ context.Context, log *entity.ReconciliationLog) error {
	copyItem := *log
	r.items = append(r.items, &copyItem)
	return nil
}

type fakeInvoicing struct {
	mu       sync.Mutex
	calls    int
	requests []*provider.DocumentRequest
	createFn func(req *provider.DocumentRequest, call int) (*provider.DocumentResponse, error)
}

func (p *fakeInvoicing) CreateDocument(_ context.Context, req *provider.DocumentRequest) (*provider.DocumentResponse, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.createFn != nil {
		return p.createFn(req, call)
	}
	return issuedResponse(call), nil
}

func (p *fakeInvoicing) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func issuedResponse(call int) *provider.DocumentResponse {
	return &provider.DocumentResponse{
		State:        "Aprobado",
		CAE:          fmt.Sprintf("7412345678%04d", call),
		Number:       fmt.Sprintf("0001-%08d", call),
		CAEExpiresAt: "2030-01-01",
		PDFURL:       fmt.Sprintf("https://docs.example.test/%d.pdf", call),
		Success:      true,
	}
}

type fakeProcessor struct {
	items    []provider.ReportedTransaction
	err      error
	from, to time.Time
	calls    int
}

func (p *fakeProcessor) Code() string { return provider.GetnetCode }

func (p *fakeProcessor) ListPaidTransactions(_ context.Context, _ string, from, to time.Time) ([]provider.ReportedTransaction, error) {
	p.calls++
	p.from, p.to = from, to
	return p.items, p.err
}

const (
	testTenantSecret  = "tenant-secret-1"
	testSigningSecret = "hmac-secret-1"
)

type harness struct {
	tenantID    uuid.UUID
	settings    *entity.BillingSettings
	txRepo      *fakeTxRepo
	invoiceRepo *fakeInvoiceRepo
	noteRepo    *fakeCreditNoteRepo
	eventRepo   *fakeEventRepo
	logRepo     *fakeLogRepo
	invoicing   *fakeInvoicing
	processor   *fakeProcessor

	invoices    *InvoiceGenerator
	creditNotes *CreditNoteEngine
	webhooks    *WebhookIngress
	reconciler  *ReconciliationEngine
	billing     *BillingService
}

func newHarness() *harness {
	signing := testSigningSecret
	tenantID := uuid.New()
	settings := &entity.BillingSettings{
		ID:                   1,
		TenantID:             tenantID,
		CompanyCUIT:          "30712345671",
		CompanyLegalName:     "Bodega SA",
		PointOfSale:          "0001",
		DocumentType:         "FB",
		DefaultTaxRate:       decimal.NewFromInt(21),
		InvoicePaidOnly:      true,
		PreferFinalConsumer:  false,
		CreditNoteStrategy:   entity.CreditNoteStrategyStub,
		WebhookTenantSecret:  testTenantSecret,
		WebhookSigningSecret: &signing,
		Active:               true,
	}

	h := &harness{
		tenantID:    tenantID,
		settings:    settings,
		txRepo:      newFakeTxRepo(),
		invoiceRepo: &fakeInvoiceRepo{},
		noteRepo:    newFakeCreditNoteRepo(),
		eventRepo:   newFakeEventRepo(),
		logRepo:     &fakeLogRepo{},
		invoicing:   &fakeInvoicing{},
		processor:   &fakeProcessor{},
	}

	settingsRepo := &fakeSettingsRepo{items: []*entity.BillingSettings{settings}}
	rates, _ := transformer.NewStaticRateSource(map[string]string{"BRL": "150"})
	normalizer := transformer.NewAmountNormalizer("ARS", rates, []string{"BRL"}, 1000)
	tr := transformer.New(normalizer, transformer.Defaults{
		Auth:                   provider.Authentication{Company: "acme", User: "api", Hash: "hash"},
		DocumentType:           "FB",
		PointOfSale:            "0001",
		CreditNoteDocumentType: "NC",
	})

	h.invoices = NewInvoiceGenerator(h.txRepo, h.invoiceRepo, tr, h.invoicing, nil)
	h.creditNotes = NewCreditNoteEngine(h.txRepo, h.noteRepo, tr, h.invoicing, nil)
	h.webhooks = NewWebhookIngress(h.txRepo, h.eventRepo, settingsRepo, tr, security.NewVerifier(false), h.invoices, h.creditNotes, "", nil)
	h.reconciler = NewReconciliationEngine(h.txRepo, settingsRepo, h.logRepo, provider.NewRegistry(h.processor), h.invoices, normalizer,
		config.ReconciliationConfig{DaysToCheck: 7, DeepDays: 30}, nil)
	h.billing = NewBillingService(h.txRepo, settingsRepo, h.invoices, h.creditNotes)
	return h
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookRequest struct {
	provider     string
	tenantSecret string
	signature    string
	body         []byte
}

func (r webhookRequest) GetProvider() string     { return r.provider }
func (r webhookRequest) GetTenantSecret() string { return r.tenantSecret }
func (r webhookRequest) GetSignature() string    { return r.signature }
func (r webhookRequest) GetBody() []byte         { return r.body }

func signedWebhook(body string) webhookRequest {
	return webhookRequest{
		provider:     provider.GetnetCode,
		tenantSecret: testTenantSecret,
		signature:    sign(testSigningSecret, []byte(body)),
		body:         []byte(body),
	}
}

type actionRequest struct {
	tenantID   string
	externalID string
	reason     string
}

func (r actionRequest) GetTenantId() string   { return r.tenantID }
func (r actionRequest) GetExternalId() string { return r.externalID }
func (r actionRequest) GetReason() string     { return r.reason }
