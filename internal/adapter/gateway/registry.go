// Package gateway holds the payout provider adapters and the registry the
// services resolve them through.
package gateway

import (
	"fmt"

	"github.com/victoryunusa/truetab-api-sub000/config"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Registry implements ports.GatewayRegistry. It is read-only after construction.
type Registry struct {
	def      domain.Provider
	adapters map[domain.Provider]ports.GatewayAdapter
}

// NewRegistry indexes adapters by provider. def must name one of them.
func NewRegistry(def domain.Provider, adapters ...ports.GatewayAdapter) (*Registry, error) {
	r := &Registry{def: def, adapters: make(map[domain.Provider]ports.GatewayAdapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Provider()]; dup {
			return nil, fmt.Errorf("gateway %s registered twice", a.Provider())
		}
		r.adapters[a.Provider()] = a
	}
	if _, ok := r.adapters[def]; !ok {
		return nil, fmt.Errorf("default gateway %q is not configured", def)
	}
	return r, nil
}

// Get implements ports.GatewayRegistry.
func (r *Registry) Get(provider domain.Provider) (ports.GatewayAdapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("unknown gateway %q", provider)
	}
	return a, nil
}

// Default implements ports.GatewayRegistry.
func (r *Registry) Default() domain.Provider {
	return r.def
}

// Providers lists the registered provider names.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

// FromConfig builds every adapter with credentials present, each behind its
// own rate limiter when cfg.RateLimit is set.
func FromConfig(cfg config.GatewayConfig, sigSvc ports.SignatureService, log zerolog.Logger) (*Registry, error) {
	var adapters []ports.GatewayAdapter
	if cfg.Midtrans.Enabled() {
		adapters = append(adapters, NewMidtrans(cfg.Midtrans, log))
	}
	if cfg.CardPay.Enabled() {
		adapters = append(adapters, NewCardPay(cfg.CardPay, sigSvc, nil, log))
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no payment gateway configured")
	}

	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		for i, a := range adapters {
			adapters[i] = Throttle(a, rate.Limit(cfg.RateLimit), burst)
		}
	}

	def := domain.Provider(cfg.DefaultProvider)
	if def == "" {
		def = adapters[0].Provider()
	}
	return NewRegistry(def, adapters...)
}
