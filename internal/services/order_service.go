package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/lock"
	"github.com/hanko-field/orderengine/internal/platform/textutil"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const (
	orderIDPrefix    = "ord_"
	checkoutIDPrefix = "chk_"
	orderCounterID   = "orders-"

	defaultOrderNumberPrefix  = "ORD"
	defaultCancellationWindow = 24 * time.Hour
	defaultLockTTL            = 30 * time.Second
	maxReasonRunes            = 500
)

var tracer = otel.Tracer("github.com/hanko-field/orderengine/internal/services")

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Carts      repositories.CartRepository
	Addresses  repositories.AddressRepository
	Counters   repositories.CounterRepository
	Claims     repositories.PaymentClaimRepository
	UnitOfWork repositories.UnitOfWork
	Calculator *OrderCalculator
	Shipping   *ShippingResolver
	Inventory  *InventoryService
	Payments   *PaymentReconciler
	Locker     lock.Locker
	LockTTL    time.Duration
	Events     OrderEventPublisher
	Metrics    OrderMetrics

	Currency           string
	TaxRate            decimal.Decimal
	CancellationWindow time.Duration
	OrderNumberPrefix  string

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	addresses  repositories.AddressRepository
	counters   repositories.CounterRepository
	claims     repositories.PaymentClaimRepository
	unitOfWork repositories.UnitOfWork
	calculator *OrderCalculator
	shipping   *ShippingResolver
	inventory  *InventoryService
	payments   *PaymentReconciler
	locker     lock.Locker
	lockTTL    time.Duration
	events     OrderEventPublisher
	metrics    OrderMetrics

	currency     string
	taxRate      decimal.Decimal
	cancelWindow time.Duration
	numberPrefix string

	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Carts == nil:
		return nil, errors.New("order service: cart repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("order service: address repository is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter repository is required")
	case deps.Claims == nil:
		return nil, errors.New("order service: payment claim repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("order service: unit of work is required")
	case deps.Calculator == nil:
		return nil, errors.New("order service: calculator is required")
	case deps.Shipping == nil:
		return nil, errors.New("order service: shipping resolver is required")
	case deps.Inventory == nil:
		return nil, errors.New("order service: inventory service is required")
	case deps.Payments == nil:
		return nil, errors.New("order service: payment reconciler is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("order service: currency is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	var metrics OrderMetrics = noopMetrics{}
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}
	window := deps.CancellationWindow
	if window <= 0 {
		window = defaultCancellationWindow
	}
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	prefix := strings.TrimSpace(deps.OrderNumberPrefix)
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}

	return &orderService{
		orders:       deps.Orders,
		carts:        deps.Carts,
		addresses:    deps.Addresses,
		counters:     deps.Counters,
		claims:       deps.Claims,
		unitOfWork:   deps.UnitOfWork,
		calculator:   deps.Calculator,
		shipping:     deps.Shipping,
		inventory:    deps.Inventory,
		payments:     deps.Payments,
		locker:       deps.Locker,
		lockTTL:      lockTTL,
		events:       deps.Events,
		metrics:      metrics,
		currency:     currency,
		taxRate:      deps.TaxRate,
		cancelWindow: window,
		numberPrefix: prefix,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PreviewCheckout(ctx context.Context, cmd PreviewCheckoutCommand) (CheckoutPreview, error) {
	ctx, span := tracer.Start(ctx, "OrderService.PreviewCheckout")
	defer span.End()

	if err := requireActor(cmd.Actor); err != nil {
		return CheckoutPreview{}, finishSpan(span, err)
	}
	if cmd.COD && cmd.Prepaid {
		return CheckoutPreview{}, finishSpan(span, newError(ErrValidation, "cod and prepaid are mutually exclusive"))
	}
	address, err := s.snapshotAddress(ctx, cmd.Actor.ID, cmd.AddressID)
	if err != nil {
		return CheckoutPreview{}, finishSpan(span, err)
	}
	calc, err := s.calculator.Calculate(ctx, cmd.Actor.ID, cmd.Selection)
	if err != nil {
		return CheckoutPreview{}, finishSpan(span, err)
	}
	quote, err := s.shipping.Quote(ctx, QuoteRequest{
		DeliveryPincode: address.Pincode,
		WeightKg:        calc.Summary.TotalWeightKg,
		COD:             cmd.COD,
		Subtotal:        calc.Summary.Subtotal,
	})
	if err != nil {
		return CheckoutPreview{}, finishSpan(span, err)
	}

	preview := CheckoutPreview{
		Items:    calc.Items,
		Summary:  calc.Summary,
		Pricing:  priceOrder(calc.Summary, quote.ShippingCharge, s.taxRate),
		Currency: s.currency,
		Quote:    quote,
	}
	if cmd.Prepaid {
		po, err := s.payments.CreatePaymentOrder(ctx, preview.Pricing.TotalAmount, s.currency, checkoutIDPrefix+s.newID())
		if err != nil {
			return CheckoutPreview{}, finishSpan(span, err)
		}
		preview.PaymentOrder = &po
	}
	return preview, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (order domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	started := time.Now()
	defer func() {
		s.observeCheckout(err, time.Since(started))
		finishSpan(span, err)
		span.End()
	}()

	if err := requireActor(cmd.Actor); err != nil {
		return domain.Order{}, err
	}
	actor := cmd.Actor
	if cmd.Selection == nil {
		span.SetAttributes(attribute.Bool("checkout.from_cart", true))
	}

	release, err := s.acquire(ctx, "checkout:"+actor.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	address, err := s.snapshotAddress(ctx, actor.ID, cmd.AddressID)
	if err != nil {
		return domain.Order{}, err
	}
	verified, verifiedStatus, err := s.payments.Initial(ctx, cmd.Payment)
	if err != nil {
		return domain.Order{}, err
	}
	now := s.now()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return domain.Order{}, err
	}
	orderID := orderIDPrefix + s.newID()
	span.SetAttributes(attribute.String("order.id", orderID))

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		calc, err := s.calculator.Calculate(txCtx, actor.ID, cmd.Selection)
		if err != nil {
			return err
		}
		if err := s.shipping.Revalidate(txCtx, cmd.Quote, QuoteRequest{
			DeliveryPincode: address.Pincode,
			WeightKg:        calc.Summary.TotalWeightKg,
			COD:             verified.Method == domain.PaymentMethodCOD,
			Subtotal:        calc.Summary.Subtotal,
		}); err != nil {
			return err
		}
		if _, err := s.inventory.Reserve(txCtx, calc.Items); err != nil {
			return err
		}

		quote := cmd.Quote
		quote.Token = ""
		pricing := priceOrder(calc.Summary, quote.ShippingCharge, s.taxRate)
		payment := verified
		paymentStatus, mismatch := s.payments.Confirm(txCtx, payment, verifiedStatus, pricing.TotalAmount, s.currency)
		if paymentStatus == domain.PaymentStatusPaid {
			if err := s.claimPayment(txCtx, payment, orderID, now); err != nil {
				return err
			}
		} else {
			payment.VerifiedAt = nil
		}
		meta := map[string]any{
			"paymentMethod": string(payment.Method),
			"paymentStatus": string(paymentStatus),
		}
		if mismatch != "" {
			meta["paymentMismatch"] = mismatch
		}

		order = domain.Order{
			ID:            orderID,
			OrderNumber:   number,
			UserID:        actor.ID,
			Items:         calc.Items,
			Pricing:       pricing,
			Currency:      s.currency,
			PaymentStatus: paymentStatus,
			Payment:       payment,
			ShippingMeta:  domain.ShippingMeta{Quote: quote},
			Address:       address,
			FromCart:      calc.FromCart,
			CreatedAt:     now,
		}
		appendStatus(&order, initialStatus(paymentStatus), actor.ID, now, "order placed", meta)
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err, "order")
		}
		if calc.FromCart {
			if err := s.carts.Clear(txCtx, actor.ID); err != nil {
				return mapRepositoryError(err, "cart")
			}
		}
		return nil
	})
	if err != nil {
		err = mapRepositoryError(err, "order")
		s.logger(ctx, "order.create.failed", map[string]any{
			"orderId": orderID,
			"userId":  actor.ID,
			"kind":    KindOf(err).Error(),
			"error":   err.Error(),
		})
		return domain.Order{}, err
	}

	s.metrics.OrderCreated(string(order.PaymentStatus))
	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"userId":      order.UserID,
		"status":      string(order.Status),
		"total":       order.Pricing.TotalAmount.StringFixed(2),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          EventOrderCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       actor.ID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentStatus": string(order.PaymentStatus),
			"totalAmount":   order.Pricing.TotalAmount.StringFixed(2),
			"fromCart":      order.FromCart,
		},
	})
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (result CancelOrderResult, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CancelOrder")
	defer func() {
		finishSpan(span, err)
		span.End()
	}()

	if err := requireActor(cmd.Actor); err != nil {
		return CancelOrderResult{}, err
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CancelOrderResult{}, newError(ErrValidation, "order id is required")
	}
	span.SetAttributes(attribute.String("order.id", orderID))
	reason := textutil.SanitizeText(cmd.Reason, maxReasonRunes)

	release, err := s.acquire(ctx, "order:"+orderID)
	if err != nil {
		return CancelOrderResult{}, err
	}
	defer release()

	now := s.now()
	var previous domain.OrderStatus
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order")
		}
		if err := authorizeOwner(order, cmd.Actor); err != nil {
			return err
		}
		if err := checkCancellable(order, cmd.Actor, now, s.cancelWindow); err != nil {
			return err
		}
		previous = order.Status

		var restored []domain.StockAdjustment
		switch {
		case order.HoldsReservation():
			if _, err := s.inventory.Release(txCtx, order.Items); err != nil {
				return err
			}
			restored = adjustments(order.Items, repositories.StockOpRelease)
		case order.StockDeducted:
			if _, err := s.inventory.Restore(txCtx, order.Items); err != nil {
				return err
			}
			restored = adjustments(order.Items, repositories.StockOpRestore)
		}

		meta := stockMeta(restored)
		if order.IsGatewayPaid() {
			// the gateway is called after commit; until then the refund is only an intent
			order.Refund = &domain.Refund{
				Amount:      domain.Round2(order.Pricing.TotalAmount),
				Status:      domain.RefundStatusPending,
				InitiatedAt: now,
			}
			meta["refundStatus"] = string(domain.RefundStatusPending)
		}
		order.Cancellation = &domain.Cancellation{
			CancelledBy:   cmd.Actor.ID,
			CancelledAt:   now,
			Reason:        reason,
			StockRestored: restored,
		}
		appendStatus(&order, domain.OrderStatusCancelled, cmd.Actor.ID, now, reason, meta)
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, "order")
		}

		result = CancelOrderResult{
			Order:         order,
			CancelledAt:   now,
			StockRestored: restored,
			Refund:        order.Refund,
		}
		return nil
	})
	if err != nil {
		return CancelOrderResult{}, err
	}

	order := result.Order
	s.metrics.OrderCancelled()
	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId":        order.ID,
		"previousStatus": string(previous),
		"actorId":        cmd.Actor.ID,
	})
	event := OrderEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     now,
	}
	cancelledMeta := order.StatusHistory[len(order.StatusHistory)-1].Meta

	if order.Refund != nil && order.Refund.Status == domain.RefundStatusPending {
		refund := s.payments.Refund(ctx, order)
		recorded, err := s.recordRefund(ctx, order.ID, refund)
		if err != nil {
			s.logger(ctx, "order.refund.unrecorded", map[string]any{
				"orderId":      order.ID,
				"refundId":     refund.RefundID,
				"refundStatus": string(refund.Status),
				"error":        err.Error(),
			})
			result.Warnings = append(result.Warnings, fmt.Sprintf("refund %s was not recorded on the order; manual action required", refund.Status))
			unrecorded := event
			unrecorded.Type = EventOrderRefundUnrecorded
			unrecorded.Metadata = map[string]any{
				"amount":            refund.Amount.StringFixed(2),
				"refundId":          refund.RefundID,
				"refundStatus":      string(refund.Status),
				"needsManualAction": true,
			}
			s.publishEvent(ctx, unrecorded)
			order.Refund = &refund
		} else {
			order = recorded
		}
		result.Order = order
		result.Refund = order.Refund
	}

	if order.Refund != nil && order.Refund.Status == domain.RefundStatusFailed {
		result.Warnings = append(result.Warnings, fmt.Sprintf("refund failed: %s; manual action required", order.Refund.FailureReason))
		s.metrics.RefundFailed()
		failed := event
		failed.Type = EventOrderRefundFailed
		failed.Metadata = map[string]any{
			"amount":            order.Refund.Amount.StringFixed(2),
			"failureReason":     order.Refund.FailureReason,
			"needsManualAction": true,
		}
		s.publishEvent(ctx, failed)
	}
	cancelled := event
	cancelled.Type = EventOrderCancelled
	cancelled.Metadata = cancelledMeta
	if order.Refund != nil {
		cancelled.Metadata = maps.Clone(cancelledMeta)
		cancelled.Metadata["refundStatus"] = string(order.Refund.Status)
	}
	s.publishEvent(ctx, cancelled)
	return result, nil
}

// recordRefund writes the gateway outcome onto a cancelled order in its own transaction. A processed
// refund moves the payment to REFUNDED; a failed one keeps it PAID for manual follow-up.
func (s *orderService) recordRefund(ctx context.Context, orderID string, refund domain.Refund) (domain.Order, error) {
	var order domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order")
		}
		current.Refund = &refund
		if refund.Status == domain.RefundStatusProcessed {
			current.PaymentStatus = domain.PaymentStatusRefunded
		}
		current.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, current); err != nil {
			return mapRepositoryError(err, "order")
		}
		order = current
		return nil
	})
	return order, err
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (result domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.TransitionStatus")
	defer func() {
		finishSpan(span, err)
		span.End()
	}()

	if err := requireActor(cmd.Actor); err != nil {
		return domain.Order{}, err
	}
	if !cmd.Actor.IsAdmin() {
		return domain.Order{}, newError(ErrUnauthorized, "only staff or fulfillment systems may change order status")
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, newError(ErrValidation, "order id is required")
	}
	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(string(cmd.To))))
	if !knownStatus(target) {
		return domain.Order{}, newError(ErrValidation, "unknown status %q", cmd.To)
	}
	if target == domain.OrderStatusCancelled {
		return domain.Order{}, newError(ErrValidation, "use the cancel operation to cancel an order")
	}
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.target_status", string(target)))

	release, err := s.acquire(ctx, "order:"+orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	now := s.now()
	reason := textutil.SanitizeText(cmd.Reason, maxReasonRunes)
	var previous domain.OrderStatus
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, "order")
		}
		if !canTransition(order.Status, target) {
			return newError(ErrConflict, "order %s cannot move from %s to %s", order.ID, order.Status, target).
				with("status", string(order.Status)).
				with("target", string(target))
		}
		previous = order.Status

		meta := maps.Clone(cmd.Meta)
		if meta == nil {
			meta = map[string]any{}
		}
		if slices.Contains(deductingStatuses, target) && !order.StockDeducted {
			if _, err := s.inventory.Deduct(txCtx, order.Items); err != nil {
				return err
			}
			order.StockDeducted = true
			meta["stockDeducted"] = true
		}
		switch target {
		case domain.OrderStatusShipped:
			awb := strings.TrimSpace(cmd.AWB)
			if awb == "" {
				awb, _ = cmd.Meta["awb"].(string)
			}
			order.ShippingMeta.AWB = textutil.SanitizeText(awb, 64)
			order.ShippingMeta.ShippedAt = &now
		case domain.OrderStatusDelivered:
			order.ShippingMeta.DeliveredAt = &now
		}
		appendStatus(&order, target, cmd.Actor.ID, now, reason, meta)
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, "order")
		}
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.StatusTransitioned(string(target))
	s.publishEvent(ctx, OrderEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        result.ID,
		OrderNumber:    result.OrderNumber,
		UserID:         result.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(result.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     now,
		Metadata:       result.StatusHistory[len(result.StatusHistory)-1].Meta,
	})
	return result, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if err := requireActor(actor); err != nil {
		return domain.Order{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, newError(ErrValidation, "order id is required")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "order")
	}
	if err := authorizeOwner(order, actor); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) snapshotAddress(ctx context.Context, userID, addressID string) (domain.Address, error) {
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return domain.Address{}, newError(ErrValidation, "address id is required")
	}
	address, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		return domain.Address{}, mapRepositoryError(err, "address")
	}
	if strings.TrimSpace(address.Pincode) == "" {
		return domain.Address{}, newError(ErrValidation, "address %s has no pincode", addressID)
	}
	address.Pincode = strings.TrimSpace(address.Pincode)
	return address, nil
}

// claimPayment binds a PAID payment to orderID inside the checkout transaction, so one gateway payment
// can never settle two orders.
func (s *orderService) claimPayment(ctx context.Context, payment domain.PaymentReference, orderID string, now time.Time) error {
	err := s.claims.Claim(ctx, domain.PaymentClaim{
		Gateway:          payment.Gateway,
		GatewayPaymentID: payment.GatewayPaymentID,
		OrderID:          orderID,
		Amount:           payment.Amount,
		ClaimedAt:        now,
	})
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return newError(ErrConflict, "payment %s already settles another order", payment.GatewayPaymentID).
			with("gatewayPaymentId", payment.GatewayPaymentID).
			wrap(err)
	}
	return mapRepositoryError(err, "payment claim")
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq, err := s.counters.Next(ctx, orderCounterID+day, 1)
	if err != nil {
		return "", mapRepositoryError(err, "order counter")
	}
	return fmt.Sprintf("%s-%s-%06d", s.numberPrefix, day, seq), nil
}

// acquire takes the named lock. Contention surfaces as ErrConflict.
func (s *orderService) acquire(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, newError(ErrConflict, "another request is already working on %s", key).with("lock", key)
		}
		return nil, newError(ErrExternalService, "lock service unavailable").wrap(err)
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger(ctx, "lock.release.failed", map[string]any{"key": key, "error": err.Error()})
		}
	}, nil
}

func (s *orderService) observeCheckout(err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).Error()
	}
	switch {
	case errors.Is(err, ErrInsufficientStock):
		s.metrics.StockConflict()
	case errors.Is(err, ErrQuoteExpired):
		s.metrics.QuoteExpired()
	}
	s.metrics.ObserveCheckout(outcome, d)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func requireActor(actor domain.Actor) error {
	if !actor.Valid() {
		return newError(ErrUnauthorized, "a valid actor is required")
	}
	return nil
}

func authorizeOwner(order domain.Order, actor domain.Actor) error {
	if actor.IsAdmin() || order.UserID == actor.ID {
		return nil
	}
	return newError(ErrUnauthorized, "order %s belongs to another user", order.ID)
}

func stockMeta(adjustments []domain.StockAdjustment) map[string]any {
	var released, restored int
	for _, adj := range adjustments {
		released += adj.Released
		restored += adj.Restored
	}
	return map[string]any{
		"lines":         len(adjustments),
		"unitsReleased": released,
		"unitsRestored": restored,
	}
}

func finishSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).Error())
	}
	return err
}
