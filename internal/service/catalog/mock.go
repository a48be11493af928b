package catalog

import (
	"context"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// MockClient — конфигурируемая заглушка CatalogClient для тестов.
type MockClient struct {
	Available    bool
	CheckErr     error
	UpdateErr    error
	UpdateErrSeq []error

	CheckCalls   int
	UpdateCalls  int
	UpdatedItems [][]domain.AvailabilityItem
}

// NewMockClient возвращает mock с успешным сценарием по умолчанию.
func NewMockClient() *MockClient {
	return &MockClient{Available: true}
}

// CheckAvailability возвращает заранее настроенный результат и считает вызовы.
func (m *MockClient) CheckAvailability(ctx context.Context, items []domain.AvailabilityItem) (bool, error) {
	m.CheckCalls++
	return m.Available, m.CheckErr
}

// UpdateInventory возвращает настроенный результат и запоминает дельты.
// Если задана последовательность UpdateErrSeq, её элементы расходуются по
// одному на вызов, после чего действует UpdateErr.
func (m *MockClient) UpdateInventory(ctx context.Context, items []domain.AvailabilityItem) error {
	m.UpdateCalls++
	m.UpdatedItems = append(m.UpdatedItems, items)
	if len(m.UpdateErrSeq) > 0 {
		err := m.UpdateErrSeq[0]
		m.UpdateErrSeq = m.UpdateErrSeq[1:]
		return err
	}
	return m.UpdateErr
}

var _ domain.CatalogClient = (*MockClient)(nil)
