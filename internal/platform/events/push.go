package events

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/neonnoe/storefront-api/internal/platform/textutil"
)

// Event names accepted on the push endpoint.
const (
	EventOrderPlaced     = "order.placed"
	EventShipmentCreated = "shipment.created"
)

// ErrUnknownEvent is returned for event names the service does not handle.
var ErrUnknownEvent = errors.New("events: unknown event name")

// PushEnvelope is the wrapper Pub/Sub wraps around push deliveries.
type PushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// OrderEvent is the decoded payload of an order lifecycle message.
type OrderEvent struct {
	Name string `json:"name"`
	Data struct {
		ID             string `json:"id"`
		NoNotification bool   `json:"no_notification"`
	} `json:"data"`
}

// DecodePush reads a push request body and returns the order event it carries.
func DecodePush(body io.Reader, limit int64) (OrderEvent, string, error) {
	var envelope PushEnvelope
	decoder := json.NewDecoder(io.LimitReader(body, limit))
	if err := decoder.Decode(&envelope); err != nil {
		return OrderEvent{}, "", fmt.Errorf("events: decode push envelope: %w", err)
	}

	data := envelope.Message.Data
	if len(data) == 0 {
		return OrderEvent{}, "", errors.New("events: push message has no data")
	}

	// encoding/json already base64-decodes []byte fields; some emulators send
	// raw JSON instead, which survives the decode untouched.
	if !json.Valid(data) {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return OrderEvent{}, "", fmt.Errorf("events: decode message data: %w", err)
		}
		data = decoded
	}

	var event OrderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return OrderEvent{}, "", fmt.Errorf("events: decode order event: %w", err)
	}

	event.Name = strings.TrimSpace(event.Name)
	if event.Name == "" {
		attributes := textutil.NormalizeStringMap(envelope.Message.Attributes)
		if name := attributes["event"]; name != "" {
			event.Name = name
		}
	}

	switch event.Name {
	case EventOrderPlaced, EventShipmentCreated:
	default:
		return OrderEvent{}, envelope.Message.MessageID, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Name)
	}

	if strings.TrimSpace(event.Data.ID) == "" {
		return OrderEvent{}, envelope.Message.MessageID, errors.New("events: order event has no id")
	}

	return event, envelope.Message.MessageID, nil
}
