package shipping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harborline/checkout-engine/internal/registry"
	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/metrics"
	"github.com/harborline/checkout-engine/pkg/types"
)

// Policy config keys read from shipping module configuration.
const (
	cfgFreeShippingThresholdCents = "free_shipping_threshold_cents"
	cfgHandlingFeeCents           = "handling_fee_cents"
)

// Service aggregates shipping quotes across every enabled module and applies
// merchant shipping policy to the merged result.
type Service interface {
	Quote(ctx context.Context, merchantID uuid.UUID, cart types.Cart, addr types.Address) (*Quote, error)
	Select(quote *Quote, moduleCode string) (*Quote, error)
}

type service struct {
	registry registry.Service
	adapters *registry.AdapterRegistry
	timeout  time.Duration
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
}

// NewService wires the quote aggregator. metrics may be nil.
func NewService(reg registry.Service, adapters *registry.AdapterRegistry, moduleTimeout time.Duration, logg *logger.Logger, em *metrics.EngineMetrics) (Service, error) {
	if reg == nil {
		return nil, fmt.Errorf("module registry required")
	}
	if adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	if moduleTimeout <= 0 {
		return nil, fmt.Errorf("module timeout must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		registry: reg,
		adapters: adapters,
		timeout:  moduleTimeout,
		logg:     logg,
		metrics:  em,
	}, nil
}

type moduleResult struct {
	options  []Option
	warning  *Warning
	answered bool
}

func (s *service) Quote(ctx context.Context, merchantID uuid.UUID, cart types.Cart, addr types.Address) (*Quote, error) {
	if err := cart.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart")
	}

	modules, err := s.registry.ListModules(ctx, merchantID, enums.ModuleKindShipping)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return &Quote{Options: []Option{}, ReturnCode: pkgerrors.CodeNoShippingModuleConfigured}, nil
	}

	results := make([]moduleResult, len(modules))
	skippedPostal := 0

	group, groupCtx := errgroup.WithContext(ctx)
	for i := range modules {
		module := modules[i]

		adapter, ok := s.lookupAdapter(module.Code)
		if !ok {
			results[i].warning = &Warning{
				ModuleCode: module.Code,
				Code:       pkgerrors.CodeShippingError,
				Message:    "no adapter registered",
			}
			continue
		}

		if adapter.RequiresPostalCode() && !addr.HasPostalCode() {
			results[i].warning = &Warning{
				ModuleCode: module.Code,
				Code:       pkgerrors.CodeNoPostalCode,
				Message:    "postal code required",
			}
			skippedPostal++
			continue
		}

		idx := i
		group.Go(func() error {
			results[idx] = s.invokeModule(groupCtx, adapter, module.Code, cart, addr, module.Config)
			// Module failures isolate; the group never cancels siblings.
			return nil
		})
	}
	_ = group.Wait()

	quote := &Quote{Options: []Option{}}
	answered := 0
	for _, res := range results {
		if res.warning != nil {
			quote.Warnings = append(quote.Warnings, *res.warning)
			continue
		}
		if res.answered {
			answered++
			quote.Options = append(quote.Options, res.options...)
		}
	}

	// Module goroutines finish in arbitrary order; merge deterministically.
	sort.SliceStable(quote.Options, func(i, j int) bool {
		if quote.Options[i].ModuleCode != quote.Options[j].ModuleCode {
			return quote.Options[i].ModuleCode < quote.Options[j].ModuleCode
		}
		return quote.Options[i].PriceCents < quote.Options[j].PriceCents
	})
	sort.SliceStable(quote.Warnings, func(i, j int) bool {
		return quote.Warnings[i].ModuleCode < quote.Warnings[j].ModuleCode
	})

	if len(quote.Options) == 0 {
		switch {
		case skippedPostal == len(modules):
			quote.ReturnCode = pkgerrors.CodeNoPostalCode
		case answered > 0:
			quote.ReturnCode = pkgerrors.CodeNoShippingToCountry
		default:
			quote.ReturnCode = pkgerrors.CodeShippingError
		}
		return quote, nil
	}

	s.applyPolicy(quote, modules, cart)
	return quote, nil
}

// Select marks the cheapest option of the given module as selected. Selection
// is always explicit; the aggregator never auto-selects.
func (s *service) Select(quote *Quote, moduleCode string) (*Quote, error) {
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote is required")
	}
	if moduleCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "module code is required")
	}

	selected := -1
	for i := range quote.Options {
		quote.Options[i].Selected = false
		if selected == -1 && quote.Options[i].ModuleCode == moduleCode {
			selected = i
		}
	}
	if selected == -1 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no option offered by module %q", moduleCode))
	}

	quote.Options[selected].Selected = true
	if quote.FreeShipping {
		quote.Options[selected].PriceCents = 0
	}
	return quote, nil
}

func (s *service) lookupAdapter(code string) (Adapter, bool) {
	raw, ok := s.adapters.Lookup(enums.ModuleKindShipping, code)
	if !ok {
		return nil, false
	}
	adapter, ok := raw.(Adapter)
	return adapter, ok
}

func (s *service) invokeModule(ctx context.Context, adapter Adapter, code string, cart types.Cart, addr types.Address, cfg types.ConfigMap) moduleResult {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	options, err := adapter.Quote(callCtx, cart, addr, cfg)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.ObserveQuote(code, "error", elapsed)
		s.logg.Warn(ctx, fmt.Sprintf("shipping module %s failed: %v", code, err))
		return moduleResult{warning: &Warning{
			ModuleCode: code,
			Code:       pkgerrors.CodeShippingError,
			Message:    err.Error(),
		}}
	}

	s.metrics.ObserveQuote(code, "ok", elapsed)
	for i := range options {
		options[i].ModuleCode = code
		options[i].Selected = false
	}
	return moduleResult{options: options, answered: true}
}

// applyPolicy reads the free-shipping threshold and handling fee from module
// configuration; the first module (in sort order) that defines a key wins.
func (s *service) applyPolicy(quote *Quote, modules []models.IntegrationModule, cart types.Cart) {
	threshold := int64(0)
	handling := int64(0)
	for _, module := range modules {
		if module.Config == nil {
			continue
		}
		if threshold == 0 {
			threshold = module.Config.Int64(cfgFreeShippingThresholdCents, 0)
		}
		if handling == 0 {
			handling = module.Config.Int64(cfgHandlingFeeCents, 0)
		}
	}

	quote.HandlingFeeCents = handling
	if threshold > 0 && cart.SubtotalCents() >= threshold {
		quote.FreeShipping = true
	}
}
