package domain

import "time"

// CompensationStep идентифицирует компенсируемый шаг саги создания/отмены заказа.
type CompensationStep string

const (
	// CompensationStepStockDecremented — синхронное списание остатка при создании заказа.
	CompensationStepStockDecremented CompensationStep = "stock_decremented"
	// CompensationStepStockRestored — возврат остатка при отмене (обратная операция списания).
	CompensationStepStockRestored CompensationStep = "stock_restored"
	// CompensationStepEventPublished — публикация lifecycle-события заказа.
	CompensationStepEventPublished CompensationStep = "event_published"
)

// CompensationEntry фиксирует фактически применённый побочный эффект по заказу.
// Журнал ведётся рядом с заказом, чтобы после сбоя между шагами createOrder
// восстановление могло детерминированно доиграть или откатить сагу,
// а не полагаться на best-effort синхронные вызовы.
type CompensationEntry struct {
	ID        string
	OrderID   string
	Step      CompensationStep
	Applied   bool
	Detail    string
	CreatedAt time.Time
}
