package storage

import (
	"fmt"
	"strings"
	"sync"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposeShippingLabel AssetPurpose = "shipping-label"
	PurposePackingSlip   AssetPurpose = "packing-slip"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	OrderID       string
	FulfillmentID string
	LabelID       string
	FileName      string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[AssetPurpose]PathBuilder{
		PurposeShippingLabel: buildShippingLabelPath,
		PurposePackingSlip:   buildPackingSlipPath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose AssetPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

func buildShippingLabelPath(params PathParams) (string, error) {
	fulfillmentID, err := validateSegment("fulfillmentID", params.FulfillmentID)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(params.FileName)
	if name == "" && params.LabelID != "" {
		name = fmt.Sprintf("%s.pdf", strings.TrimSpace(params.LabelID))
	}
	fileName, err := validateFileName(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("labels/fulfillments/%s/%s", fulfillmentID, fileName), nil
}

func buildPackingSlipPath(params PathParams) (string, error) {
	orderID, err := validateSegment("orderID", params.OrderID)
	if err != nil {
		return "", err
	}
	fulfillmentID, err := validateSegment("fulfillmentID", params.FulfillmentID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("labels/orders/%s/packing-slips/%s/%s", orderID, fulfillmentID, fileName), nil
}

// ValidateObjectPath checks a stored object path for traversal or absolute segments.
func ValidateObjectPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("storage: object path is required")
	}
	if strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("storage: object path must be relative")
	}
	if strings.Contains(path, "\\") {
		return "", fmt.Errorf("storage: object path contains invalid path characters")
	}
	for _, segment := range strings.Split(path, "/") {
		if strings.TrimSpace(segment) == "" {
			return "", fmt.Errorf("storage: object path contains empty segment")
		}
		if segment == "." || segment == ".." {
			return "", fmt.Errorf("storage: object path contains invalid traversal sequence")
		}
	}
	return path, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
