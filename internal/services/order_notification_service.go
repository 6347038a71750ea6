package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/neonnoe/storefront-api/internal/notifications"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

const (
	templateOrderConfirmation = "order-confirmation"
	templateOrderShipped      = "order-shipped"

	webhookEventOrderPlaced = "order.placed"

	fulfillmentLookupAttempts = 3
)

// ErrOrderMissing is returned when neither the fulfillment nor recent orders
// allow resolving the order a shipment belongs to.
var ErrOrderMissing = errors.New("order could not be resolved for fulfillment")

// OrderNotificationDeps carries the dependencies required by the order notification service.
type OrderNotificationDeps struct {
	Orders       repositories.OrderRepository
	Fulfillments repositories.FulfillmentRepository
	Provider     notifications.Provider
	Webhooks     WebhookNotifier
	Events       EventPublisher
	Labels       LabelURLResolver
	Clock        func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	Logger       *zap.Logger
}

type orderNotificationService struct {
	orders       repositories.OrderRepository
	fulfillments repositories.FulfillmentRepository
	provider     notifications.Provider
	webhooks     WebhookNotifier
	events       EventPublisher
	labels       LabelURLResolver
	sanitizer    *bluemonday.Policy
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *zap.Logger
}

var _ OrderNotificationService = (*orderNotificationService)(nil)

// NewOrderNotificationService constructs the service reacting to order lifecycle events.
func NewOrderNotificationService(deps OrderNotificationDeps) (OrderNotificationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order notification service requires an order repository")
	}
	if deps.Fulfillments == nil {
		return nil, errors.New("order notification service requires a fulfillment repository")
	}
	if deps.Provider == nil {
		return nil, errors.New("order notification service requires a notification provider")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &orderNotificationService{
		orders:       deps.Orders,
		fulfillments: deps.Fulfillments,
		provider:     deps.Provider,
		webhooks:     deps.Webhooks,
		events:       deps.Events,
		labels:       deps.Labels,
		sanitizer:    bluemonday.StrictPolicy(),
		now:          clock,
		sleep:        sleep,
		logger:       logger,
	}, nil
}

// HandleOrderPlaced sends the order confirmation email and fires the
// automation webhook. The webhook and event bus are best effort; only the
// email send can fail the handler.
func (s *orderNotificationService) HandleOrderPlaced(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order id is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.logger.Warn("order not found for confirmation", zap.String("orderId", orderID))
			return nil
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	if order.Email == "" {
		s.logger.Warn("order has no email, skipping confirmation", zap.String("orderId", order.ID))
	} else {
		result, err := s.provider.Send(ctx, notifications.Message{
			To:       order.Email,
			Template: templateOrderConfirmation,
			Model:    s.confirmationModel(order),
		})
		if err != nil {
			return fmt.Errorf("send order confirmation for %s: %w", order.ID, err)
		}
		s.logger.Info("order confirmation sent",
			zap.String("orderId", order.ID),
			zap.String("messageId", result.ID))
		s.publishSent(ctx, order, templateOrderConfirmation)
	}

	if s.webhooks != nil {
		payload := map[string]any{
			"id":                 order.ID,
			"created_at":         order.CreatedAt,
			"total":              order.Totals.Total,
			"payment_status":     order.PaymentStatus,
			"fulfillment_status": order.FulfillmentStatus,
		}
		if order.ShippingAddress != nil {
			payload["shipping_address"] = s.addressModel(*order.ShippingAddress)
		}
		if err := s.webhooks.Notify(ctx, webhookEventOrderPlaced, payload); err != nil {
			s.logger.Warn("order placed webhook failed",
				zap.String("orderId", order.ID),
				zap.Error(err))
		}
	}

	return nil
}

// HandleShipmentCreated sends the shipment notification email. Fulfillment
// lookups are retried because the event can arrive before the record is
// readable.
func (s *orderNotificationService) HandleShipmentCreated(ctx context.Context, fulfillmentID string, noNotification bool) error {
	fulfillmentID = strings.TrimSpace(fulfillmentID)
	if fulfillmentID == "" {
		return errors.New("fulfillment id is required")
	}
	if noNotification {
		s.logger.Info("shipment notification suppressed", zap.String("fulfillmentId", fulfillmentID))
		return nil
	}

	fulfillment, err := s.loadFulfillment(ctx, fulfillmentID)
	if err != nil {
		return err
	}

	order, err := s.resolveOrder(ctx, fulfillment)
	if err != nil {
		return err
	}

	if order.Email == "" {
		s.logger.Warn("order has no email, skipping shipment notification",
			zap.String("orderId", order.ID),
			zap.String("fulfillmentId", fulfillment.ID))
		return nil
	}

	result, err := s.provider.Send(ctx, notifications.Message{
		To:       order.Email,
		Template: templateOrderShipped,
		Model:    s.shipmentModel(ctx, order, fulfillment),
	})
	if err != nil {
		return fmt.Errorf("send shipment notification for %s: %w", order.ID, err)
	}
	s.logger.Info("shipment notification sent",
		zap.String("orderId", order.ID),
		zap.String("fulfillmentId", fulfillment.ID),
		zap.String("messageId", result.ID))
	s.publishSent(ctx, order, templateOrderShipped)

	return nil
}

func (s *orderNotificationService) loadFulfillment(ctx context.Context, fulfillmentID string) (Fulfillment, error) {
	backoff := gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= fulfillmentLookupAttempts; attempt++ {
		fulfillment, err := s.fulfillments.FindByID(ctx, fulfillmentID)
		if err == nil {
			return fulfillment, nil
		}
		lastErr = err
		if !repositories.IsNotFound(err) && !repositories.IsUnavailable(err) {
			break
		}
		if attempt == fulfillmentLookupAttempts {
			break
		}
		s.logger.Warn("fulfillment not readable yet, retrying",
			zap.String("fulfillmentId", fulfillmentID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if err := s.sleep(ctx, backoff.Pause()); err != nil {
			return Fulfillment{}, err
		}
	}
	return Fulfillment{}, fmt.Errorf("load fulfillment %s: %w", fulfillmentID, lastErr)
}

// resolveOrder walks the fallback chain: the fulfillment's order reference,
// then its metadata, then the most recently placed order.
func (s *orderNotificationService) resolveOrder(ctx context.Context, fulfillment Fulfillment) (Order, error) {
	orderID := strings.TrimSpace(fulfillment.OrderID)
	if orderID == "" {
		if raw, ok := fulfillment.Metadata["order_id"]; ok {
			if id, ok := raw.(string); ok {
				orderID = strings.TrimSpace(id)
			}
		}
	}

	if orderID != "" {
		order, err := s.orders.FindByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !repositories.IsNotFound(err) {
			return Order{}, fmt.Errorf("load order %s: %w", orderID, err)
		}
		s.logger.Warn("order referenced by fulfillment not found",
			zap.String("fulfillmentId", fulfillment.ID),
			zap.String("orderId", orderID))
	}

	recent, err := s.orders.ListRecent(ctx, 1)
	if err != nil {
		return Order{}, fmt.Errorf("list recent orders: %w", err)
	}
	if len(recent) == 0 {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderMissing, fulfillment.ID)
	}
	s.logger.Warn("falling back to most recent order for shipment",
		zap.String("fulfillmentId", fulfillment.ID),
		zap.String("orderId", recent[0].ID))
	return recent[0], nil
}

func (s *orderNotificationService) publishSent(ctx context.Context, order Order, template string) {
	if s.events == nil {
		return
	}
	event := NotificationSentEvent{
		NotificationID: ulid.Make().String(),
		OrderID:        order.ID,
		Template:       template,
		Recipient:      order.Email,
		SentAt:         s.now().UTC(),
	}
	if _, err := s.events.PublishNotificationSent(ctx, event); err != nil {
		s.logger.Warn("notification event publish failed",
			zap.String("orderId", order.ID),
			zap.String("template", template),
			zap.Error(err))
	}
}

func (s *orderNotificationService) confirmationModel(order Order) map[string]any {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"title":         s.clean(item.Title),
			"variant_title": s.clean(item.VariantTitle),
			"sku":           item.SKU,
			"quantity":      item.Quantity,
			"unit_price":    item.UnitPrice,
			"total":         item.Total,
			"thumbnail":     item.Thumbnail,
		})
	}

	model := map[string]any{
		"order_id":       order.ID,
		"display_id":     order.DisplayID,
		"email":          order.Email,
		"currency_code":  strings.ToUpper(order.CurrencyCode),
		"created_at":     order.CreatedAt.Format(time.RFC3339),
		"items":          items,
		"subtotal":       order.Totals.Subtotal,
		"shipping_total": order.Totals.ShippingTotal,
		"tax_total":      order.Totals.TaxTotal,
		"discount_total": order.Totals.DiscountTotal,
		"total":          order.Totals.Total,
	}
	if order.ShippingAddress != nil {
		model["shipping_address"] = s.addressModel(*order.ShippingAddress)
	}
	if order.BillingAddress != nil {
		model["billing_address"] = s.addressModel(*order.BillingAddress)
	}
	return model
}

func (s *orderNotificationService) shipmentModel(ctx context.Context, order Order, fulfillment Fulfillment) map[string]any {
	tracking := make([]map[string]any, 0, len(fulfillment.Labels))
	for _, label := range fulfillment.Labels {
		entry := map[string]any{
			"tracking_number": label.TrackingNumber,
			"tracking_url":    label.TrackingURL,
		}
		if s.labels != nil && label.LabelPath != "" {
			url, err := s.labels.ResolveLabelURL(ctx, label.LabelPath)
			if err != nil {
				s.logger.Warn("label url resolution failed",
					zap.String("fulfillmentId", fulfillment.ID),
					zap.String("labelPath", label.LabelPath),
					zap.Error(err))
			} else {
				entry["label_url"] = url
			}
		}
		tracking = append(tracking, entry)
	}

	model := map[string]any{
		"order_id":       order.ID,
		"display_id":     order.DisplayID,
		"email":          order.Email,
		"fulfillment_id": fulfillment.ID,
		"tracking":       tracking,
	}
	if fulfillment.ShippedAt != nil {
		model["shipped_at"] = fulfillment.ShippedAt.Format(time.RFC3339)
	}
	if order.ShippingAddress != nil {
		model["shipping_address"] = s.addressModel(*order.ShippingAddress)
	}
	return model
}

func (s *orderNotificationService) addressModel(addr OrderAddress) map[string]any {
	return map[string]any{
		"first_name":   s.clean(addr.FirstName),
		"last_name":    s.clean(addr.LastName),
		"company":      s.clean(addr.Company),
		"address_1":    s.clean(addr.Address1),
		"address_2":    s.clean(addr.Address2),
		"city":         s.clean(addr.City),
		"postal_code":  addr.PostalCode,
		"province":     s.clean(addr.Province),
		"country_code": strings.ToUpper(addr.CountryCode),
		"phone":        addr.Phone,
	}
}

// clean strips any markup from user-entered strings before they reach email
// templates or webhook consumers.
func (s *orderNotificationService) clean(value string) string {
	return s.sanitizer.Sanitize(value)
}
