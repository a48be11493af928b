package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

const defaultRequestTimeout = 5 * time.Second

// HTTPClient — клиент каталога поверх REST API. Используется, когда каталог
// развёрнут отдельным сервисом; при совместном развёртывании со складом
// используется LedgerAdapter.
type HTTPClient struct {
	client  *resty.Client
	baseURL string
	logger  *log.Entry
}

// HTTPClientOption настраивает HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithTimeout задаёт таймаут одного запроса к каталогу.
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		c.client.SetTimeout(timeout)
	}
}

// WithHTTPLogger задаёт logger клиента.
func WithHTTPLogger(logger *log.Entry) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// NewHTTPClient создаёт клиент каталога.
func NewHTTPClient(baseURL string, options ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		client:  resty.New().SetTimeout(defaultRequestTimeout),
		baseURL: baseURL,
		logger:  log.WithField("component", "catalog-client"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

type availabilityRequest struct {
	Items []wireItem `json:"items"`
}

type wireItem struct {
	ProductID string `json:"productId"`
	SKUCode   string `json:"skuCode"`
	Quantity  int64  `json:"quantity"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

// CheckAvailability сообщает, доступны ли все позиции в требуемом количестве.
// Ответ 5xx или сетевая ошибка оборачиваются в ErrCatalogUnavailable,
// чтобы вызывающая сторона могла применить ограниченный повтор.
func (c *HTTPClient) CheckAvailability(ctx context.Context, items []domain.AvailabilityItem) (bool, error) {
	var result availabilityResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(availabilityRequest{Items: toWireItems(items)}).
		SetResult(&result).
		Post(c.baseURL + "/api/inventory/check-availability")
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrCatalogUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
		return result.Available, nil
	case resp.StatusCode() >= http.StatusInternalServerError:
		return false, fmt.Errorf("%w: status %d", domain.ErrCatalogUnavailable, resp.StatusCode())
	default:
		return false, fmt.Errorf("catalog availability check: unexpected status %d", resp.StatusCode())
	}
}

// UpdateInventory применяет знаковые дельты к остаткам каталога.
func (c *HTTPClient) UpdateInventory(ctx context.Context, items []domain.AvailabilityItem) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(availabilityRequest{Items: toWireItems(items)}).
		Post(c.baseURL + "/api/inventory/update")
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrCatalogUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusNoContent:
		return nil
	case resp.StatusCode() == http.StatusConflict:
		return domain.ErrInsufficientStock
	case resp.StatusCode() >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", domain.ErrCatalogUnavailable, resp.StatusCode())
	default:
		return fmt.Errorf("catalog inventory update: unexpected status %d", resp.StatusCode())
	}
}

func toWireItems(items []domain.AvailabilityItem) []wireItem {
	result := make([]wireItem, 0, len(items))
	for _, item := range items {
		result = append(result, wireItem{
			ProductID: item.ProductID,
			SKUCode:   item.SKU,
			Quantity:  item.Qty,
		})
	}
	return result
}

var _ domain.CatalogClient = (*HTTPClient)(nil)
