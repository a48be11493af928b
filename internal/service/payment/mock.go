package payment

import (
	"context"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов.
type MockGateway struct {
	ProcessStatus domain.PaymentStatus
	ProcessErr    error
	CaptureStatus domain.PaymentStatus
	CaptureErr    error
	RefundStatus  domain.PaymentStatus
	RefundErr     error

	ProcessCalls int
	CaptureCalls int
	RefundCalls  int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ProcessStatus: domain.PaymentStatusAuthorized,
		CaptureStatus: domain.PaymentStatusCaptured,
		RefundStatus:  domain.PaymentStatusRefunded,
	}
}

// ProcessPayment возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) ProcessPayment(ctx context.Context, orderID string, amountMinor int64, currency string) (domain.PaymentStatus, error) {
	m.ProcessCalls++
	return m.ProcessStatus, m.ProcessErr
}

// Capture возвращает настроенный результат и считает вызовы.
func (m *MockGateway) Capture(ctx context.Context, orderID string) (domain.PaymentStatus, error) {
	m.CaptureCalls++
	return m.CaptureStatus, m.CaptureErr
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockGateway) Refund(ctx context.Context, orderID string, amountMinor int64, currency string) (domain.PaymentStatus, error) {
	m.RefundCalls++
	return m.RefundStatus, m.RefundErr
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
