package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// SandboxProvider issues deterministic placeholder documents for environments
// without a live fiscal back end. Numbers are tagged "SBX".
type SandboxProvider struct {
	sequence atomic.Uint64
	now      func() time.Time
}

func NewSandboxProvider() *SandboxProvider {
	return &SandboxProvider{now: time.Now}
}

func (p *SandboxProvider) CreateDocument(ctx context.Context, req *DocumentRequest) (*DocumentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seq := p.sequence.Add(1)
	pointOfSale := req.Header.PointOfSale
	if pointOfSale == "" {
		pointOfSale = "0001"
	}
	number := fmt.Sprintf("SBX-%s-%08d", pointOfSale, seq)
	now := p.now().UTC()

	return &DocumentResponse{
		State:        "Aprobado",
		Messages:     []string{"sandbox document issued"},
		CAE:          fmt.Sprintf("SBX%011d", now.Unix()%100000000000),
		Number:       number,
		CAEExpiresAt: now.AddDate(0, 0, 10).Format("2006-01-02"),
		PDFURL:       "sandbox://documents/" + number + ".pdf",
		Success:      true,
	}, nil
}
