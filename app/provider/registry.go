package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	processors map[string]PaymentProcessor
}

func NewRegistry(processors ...PaymentProcessor) *Registry {
	items := make(map[string]PaymentProcessor, len(processors))
	for _, p := range processors {
		items[strings.ToLower(p.Code())] = p
	}
	return &Registry{processors: items}
}

func (r *Registry) Get(code string) (PaymentProcessor, error) {
	processor, ok := r.processors[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return processor, nil
}
