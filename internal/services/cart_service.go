package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories"
)

const instrumentationName = "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/services"

var errCartRepositoryRequired = errors.New("cart service: repository is required")

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart store could not serve the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// CartServiceDeps wires the repository, assembly and notification dependencies for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Assembler   *CartAssembler
	Events      CartEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	Meter       metric.Meter
	Tracer      trace.Tracer
}

type cartService struct {
	repo      repositories.CartRepository
	assembler *CartAssembler
	events    CartEventPublisher
	newID     func() string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	tracer    trace.Tracer

	operations        metric.Int64Counter
	operationsEnabled bool
	storeLatency      metric.Float64Histogram
	latencyEnabled    bool
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	assembler := deps.Assembler
	if assembler == nil {
		assembler = NewCartAssembler(CartAssemblerDeps{Clock: clock})
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}

	operations, opErr := meter.Int64Counter(
		"cart.operations",
		metric.WithDescription("Cart service operations by outcome"),
	)
	if opErr != nil {
		logger(context.Background(), "cart.metrics.register_failed", map[string]any{"metric": "cart.operations", "error": opErr.Error()})
	}
	latency, latErr := meter.Float64Histogram(
		"cart.store.latency",
		metric.WithDescription("Latency of cart store calls"),
		metric.WithUnit("ms"),
	)
	if latErr != nil {
		logger(context.Background(), "cart.metrics.register_failed", map[string]any{"metric": "cart.store.latency", "error": latErr.Error()})
	}

	return &cartService{
		repo:              deps.Repository,
		assembler:         assembler,
		events:            deps.Events,
		newID:             idGen,
		now:               func() time.Time { return clock().UTC() },
		logger:            logger,
		tracer:            tracer,
		operations:        operations,
		operationsEnabled: opErr == nil,
		storeLatency:      latency,
		latencyEnabled:    latErr == nil,
	}, nil
}

// AssembleCart computes the cart totals and replaces the stored cart. Validation happens before any store access.
func (s *cartService) AssembleCart(ctx context.Context, cmd AssembleCartCommand) (cart Cart, err error) {
	ctx, span := s.startSpan(ctx, "cart.assemble", cmd.CustomerID)
	defer func() { s.finish(ctx, span, "assemble", err) }()

	assembled, err := s.assembler.AssembleCart(ctx, cmd)
	if err != nil {
		return Cart{}, err
	}

	saved, err := s.save(ctx, assembled)
	if err != nil {
		return Cart{}, err
	}

	s.logger(ctx, "cart.assembled", map[string]any{
		"customerId": saved.CustomerID,
		"items":      len(saved.Items),
		"subtotal":   saved.Subtotal.StringFixed(2),
		"tax":        saved.TaxAmount.StringFixed(2),
		"total":      saved.Total.StringFixed(2),
	})
	s.publish(ctx, CartEventUpdated, saved)
	return saved, nil
}

// UpdateShippingMethod applies a new shipping selection to an existing cart and persists the result.
func (s *cartService) UpdateShippingMethod(ctx context.Context, cmd UpdateShippingCommand) (cart Cart, err error) {
	ctx, span := s.startSpan(ctx, "cart.update_shipping", cmd.CustomerID)
	defer func() { s.finish(ctx, span, "update_shipping", err) }()

	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.ShippingMethod) == "" {
		return Cart{}, fmt.Errorf("%w: shipping method is required", ErrCartInvalidInput)
	}
	if err := validateShippingCost(cmd.ShippingCost); err != nil {
		return Cart{}, err
	}

	existing, err := s.load(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}

	updated, err := s.assembler.ApplyShipping(ctx, existing, cmd.ShippingMethod, cmd.ShippingCost)
	if err != nil {
		return Cart{}, err
	}

	saved, err := s.save(ctx, updated)
	if err != nil {
		return Cart{}, err
	}

	s.logger(ctx, "cart.shipping_updated", map[string]any{
		"customerId":     saved.CustomerID,
		"shippingMethod": saved.ShippingMethod,
		"shippingCost":   saved.ShippingCost.StringFixed(2),
		"total":          saved.Total.StringFixed(2),
	})
	s.publish(ctx, CartEventUpdated, saved)
	return saved, nil
}

// GetCart returns the stored cart for the customer.
func (s *cartService) GetCart(ctx context.Context, customerID string) (cart Cart, err error) {
	ctx, span := s.startSpan(ctx, "cart.get", customerID)
	defer func() { s.finish(ctx, span, "get", err) }()

	id := strings.TrimSpace(customerID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	return s.load(ctx, id)
}

// ListCarts returns every stored cart.
func (s *cartService) ListCarts(ctx context.Context) (carts []Cart, err error) {
	ctx, span := s.startSpan(ctx, "cart.list", "")
	defer func() { s.finish(ctx, span, "list", err) }()

	start := time.Now()
	carts, err = s.repo.ListCarts(ctx)
	s.recordLatency(ctx, "list", start)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if carts == nil {
		carts = []Cart{}
	}
	return carts, nil
}

// DeleteCart removes the stored cart for the customer.
func (s *cartService) DeleteCart(ctx context.Context, customerID string) (err error) {
	ctx, span := s.startSpan(ctx, "cart.delete", customerID)
	defer func() { s.finish(ctx, span, "delete", err) }()

	id := strings.TrimSpace(customerID)
	if id == "" {
		return fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}

	start := time.Now()
	err = s.repo.DeleteCart(ctx, id)
	s.recordLatency(ctx, "delete", start)
	if err != nil {
		return s.translateRepoError(err)
	}

	s.logger(ctx, "cart.deleted", map[string]any{"customerId": id})
	s.publish(ctx, CartEventDeleted, Cart{CustomerID: id})
	return nil
}

// TaxBreakdown recomputes the pre-shipping figures from the stored items.
func (s *cartService) TaxBreakdown(ctx context.Context, customerID string) (breakdown TaxBreakdown, err error) {
	ctx, span := s.startSpan(ctx, "cart.tax_breakdown", customerID)
	defer func() { s.finish(ctx, span, "tax_breakdown", err) }()

	id := strings.TrimSpace(customerID)
	if id == "" {
		return TaxBreakdown{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	cart, err := s.load(ctx, id)
	if err != nil {
		return TaxBreakdown{}, err
	}
	return s.assembler.Breakdown(ctx, cart), nil
}

func (s *cartService) load(ctx context.Context, customerID string) (Cart, error) {
	start := time.Now()
	cart, err := s.repo.GetCart(ctx, customerID)
	s.recordLatency(ctx, "get", start)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart Cart) (Cart, error) {
	start := time.Now()
	saved, err := s.repo.SaveCart(ctx, cart)
	s.recordLatency(ctx, "save", start)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *cartService) publish(ctx context.Context, eventType CartEventType, cart Cart) {
	if s.events == nil {
		return
	}
	event := CartEvent{
		ID:         s.newID(),
		Type:       eventType,
		CustomerID: cart.CustomerID,
		Subtotal:   cart.Subtotal,
		TaxAmount:  cart.TaxAmount,
		Total:      cart.Total,
		Currency:   cart.Currency,
		OccurredAt: s.now(),
	}
	if _, err := s.events.PublishCartEvent(ctx, event); err != nil {
		s.logger(ctx, "cart.event_publish_failed", map[string]any{
			"customerId": cart.CustomerID,
			"eventType":  string(eventType),
			"error":      err.Error(),
		})
	}
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCartNotFound
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func (s *cartService) startSpan(ctx context.Context, name, customerID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if id := strings.TrimSpace(customerID); id != "" {
		span.SetAttributes(attribute.String("cart.customer_id", id))
	}
	return ctx, span
}

func (s *cartService) finish(ctx context.Context, span trace.Span, op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrCartInvalidInput):
		outcome = "invalid"
	case errors.Is(err, ErrCartNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.operationsEnabled {
		s.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
	span.End()
}

func (s *cartService) recordLatency(ctx context.Context, op string, start time.Time) {
	if !s.latencyEnabled {
		return
	}
	elapsed := time.Since(start)
	s.storeLatency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attribute.String("op", op)))
}
