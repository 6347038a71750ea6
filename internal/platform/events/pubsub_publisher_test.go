package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/neonnoe/storefront-api/internal/services"
)

func TestPubSubEventPublisherPublishesNotificationSent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "storefront-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	sentAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.NotificationSentEvent{
		NotificationID: "01JTESTULID000000000000000",
		OrderID:        "order_01",
		Template:       "order-confirmation",
		Recipient:      "buyer@example.com",
		SentAt:         sentAt,
	}

	if _, err := publisher.PublishNotificationSent(ctx, event); err != nil {
		t.Fatalf("PublishNotificationSent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.NotificationSentEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.NotificationID != event.NotificationID || payload.OrderID != event.OrderID {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["event"]; attr != "notification.sent" {
		t.Fatalf("expected event attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["template"]; attr != "order-confirmation" {
		t.Fatalf("expected template attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["recipient"]; ok {
		t.Fatalf("recipient attribute should not be present")
	}
}
