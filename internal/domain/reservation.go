package domain

import "time"

// ReservationStatus отражает статус удержания остатка под заказ.
type ReservationStatus string

const (
	// ReservationStatusActive — резерв удерживает доступный остаток.
	ReservationStatusActive ReservationStatus = "active"
	// ReservationStatusReleased — резерв снят, остаток возвращён в доступные.
	ReservationStatusReleased ReservationStatus = "released"
	// ReservationStatusConsumed — резерв превращён в постоянное списание.
	ReservationStatusConsumed ReservationStatus = "consumed"
)

// Reservation — персистентная запись об удержании остатка.
// Ledger сверяет release/consume с этой записью, а не доверяет количеству,
// заявленному вызывающей стороной.
type Reservation struct {
	ID        string
	SKU       string
	Qty       int64
	Status    ReservationStatus
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет ключевые поля резерва.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrItemQtyInvalid)
	}

	return errs
}

// IsOpen сообщает, удерживает ли резерв остаток в данный момент.
func (r *Reservation) IsOpen() bool {
	return r.Status == ReservationStatusActive
}
