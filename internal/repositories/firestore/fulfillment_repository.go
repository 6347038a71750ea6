package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	pfirestore "github.com/neonnoe/storefront-api/internal/platform/firestore"
	"github.com/neonnoe/storefront-api/internal/platform/storage"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

const fulfillmentCollection = "fulfillments"

// FulfillmentRepository reads shipment fulfillment records from Firestore.
type FulfillmentRepository struct {
	base *pfirestore.BaseRepository[fulfillmentDocument]
}

// NewFulfillmentRepository constructs a Firestore-backed fulfillment repository.
func NewFulfillmentRepository(provider *pfirestore.Provider) (*FulfillmentRepository, error) {
	if provider == nil {
		return nil, errors.New("fulfillment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[fulfillmentDocument](provider, fulfillmentCollection, nil, nil)
	return &FulfillmentRepository{base: base}, nil
}

// FindByID loads a single fulfillment by its document ID.
func (r *FulfillmentRepository) FindByID(ctx context.Context, fulfillmentID string) (domain.Fulfillment, error) {
	if r == nil || r.base == nil {
		return domain.Fulfillment{}, errors.New("fulfillment repository not initialised")
	}
	id := strings.TrimSpace(fulfillmentID)
	if id == "" {
		return domain.Fulfillment{}, errors.New("fulfillment repository: fulfillment id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Fulfillment{}, err
	}
	return fulfillmentFromDocument(doc.ID, doc.Data), nil
}

func fulfillmentFromDocument(id string, doc fulfillmentDocument) domain.Fulfillment {
	fulfillment := domain.Fulfillment{
		ID:        id,
		OrderID:   strings.TrimSpace(doc.OrderID),
		Metadata:  cloneMetadata(doc.Metadata),
		ShippedAt: doc.ShippedAt,
		CreatedAt: doc.CreatedAt,
	}
	if len(doc.Labels) > 0 {
		fulfillment.Labels = make([]domain.FulfillmentLabel, 0, len(doc.Labels))
		for _, label := range doc.Labels {
			entry := domain.FulfillmentLabel{
				ID:             strings.TrimSpace(label.ID),
				TrackingNumber: strings.TrimSpace(label.TrackingNumber),
				TrackingURL:    strings.TrimSpace(label.TrackingURL),
				LabelPath:      strings.TrimSpace(label.LabelPath),
			}
			// Older documents predate the labelPath field; fall back to the
			// canonical object layout.
			if entry.LabelPath == "" && entry.ID != "" {
				if path, err := storage.BuildObjectPath(storage.PurposeShippingLabel, storage.PathParams{
					FulfillmentID: id,
					LabelID:       entry.ID,
				}); err == nil {
					entry.LabelPath = path
				}
			}
			fulfillment.Labels = append(fulfillment.Labels, entry)
		}
	}
	return fulfillment
}

func cloneMetadata(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type fulfillmentDocument struct {
	OrderID   string                     `firestore:"orderId,omitempty"`
	Labels    []fulfillmentLabelDocument `firestore:"labels,omitempty"`
	Metadata  map[string]any             `firestore:"metadata,omitempty"`
	ShippedAt *time.Time                 `firestore:"shippedAt,omitempty"`
	CreatedAt time.Time                  `firestore:"createdAt"`
}

type fulfillmentLabelDocument struct {
	ID             string `firestore:"id"`
	TrackingNumber string `firestore:"trackingNumber,omitempty"`
	TrackingURL    string `firestore:"trackingUrl,omitempty"`
	LabelPath      string `firestore:"labelPath,omitempty"`
}

var _ repositories.FulfillmentRepository = (*FulfillmentRepository)(nil)
