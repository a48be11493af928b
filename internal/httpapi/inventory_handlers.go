package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/ledger"
)

// InventoryHandler обслуживает REST-поверхность склада.
type InventoryHandler struct {
	ledger *ledger.Service
}

// NewInventoryHandler создаёт handler склада.
func NewInventoryHandler(svc *ledger.Service) *InventoryHandler {
	return &InventoryHandler{ledger: svc}
}

type createItemRequest struct {
	SKUCode           string `json:"skuCode" binding:"required"`
	ProductID         string `json:"productId"`
	InitialQuantity   int64  `json:"initialQuantity"`
	LowStockThreshold int64  `json:"lowStockThreshold"`
	RestockThreshold  int64  `json:"restockThreshold"`
}

type adjustRequest struct {
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}

type reservationRequest struct {
	Quantity      int64  `json:"quantity" binding:"required"`
	ReservationID string `json:"reservationId"`
	Reason        string `json:"reason"`
}

type restockRequest struct {
	Quantity int64 `json:"quantity" binding:"required"`
}

type stockItemResponse struct {
	SKUCode           string     `json:"skuCode"`
	ProductID         string     `json:"productId,omitempty"`
	Quantity          int64      `json:"quantity"`
	Reserved          int64      `json:"reservedQuantity"`
	Available         int64      `json:"availableQuantity"`
	LowStockThreshold int64      `json:"lowStockThreshold"`
	RestockThreshold  int64      `json:"restockThreshold"`
	IsActive          bool       `json:"isActive"`
	Status            string     `json:"status"`
	LastRestockedAt   *time.Time `json:"lastRestockedAt,omitempty"`
	NextRestockAt     *time.Time `json:"nextRestockAt,omitempty"`
	Version           int64      `json:"version"`
}

type reservationResponse struct {
	stockItemResponse
	ReservationID string `json:"reservationId,omitempty"`
}

type statusResponse struct {
	SKUCode   string `json:"skuCode"`
	InStock   bool   `json:"inStock"`
	Available int64  `json:"availableQuantity"`
	LowStock  bool   `json:"lowStock"`
	Status    string `json:"status"`
}

type stockLevelResponse struct {
	SKUCode           string `json:"skuCode"`
	CurrentLevel      int64  `json:"currentLevel"`
	LowStockThreshold int64  `json:"lowStockThreshold"`
	RestockThreshold  int64  `json:"restockThreshold"`
	Status            string `json:"status"`
}

type availabilityCheckRequest struct {
	Items []availabilityWireItem `json:"items" binding:"required"`
}

type availabilityWireItem struct {
	ProductID string `json:"productId"`
	SKUCode   string `json:"skuCode" binding:"required"`
	Quantity  int64  `json:"quantity"`
}

// CreateItem регистрирует новую позицию склада.
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	item, err := h.ledger.CreateItem(ledger.CreateItemParams{
		SKU:               req.SKUCode,
		ProductID:         req.ProductID,
		InitialQty:        req.InitialQuantity,
		LowStockThreshold: req.LowStockThreshold,
		RestockThreshold:  req.RestockThreshold,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStockItemResponse(item))
}

// GetStatus возвращает статус доступности по SKU.
func (h *InventoryHandler) GetStatus(c *gin.Context) {
	status, err := h.ledger.GetStatus(c.Param("sku"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		SKUCode:   status.SKU,
		InStock:   status.InStock,
		Available: status.Available,
		LowStock:  status.LowStock,
		Status:    string(status.Status),
	})
}

// GetStockLevel возвращает уровень остатка по SKU.
func (h *InventoryHandler) GetStockLevel(c *gin.Context) {
	level, err := h.ledger.GetStockLevel(c.Param("sku"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockLevelResponse(level))
}

// AdjustStock применяет знаковую дельту к общему количеству.
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	item, err := h.ledger.AdjustStock(c.Param("sku"), req.Delta, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockItemResponse(item))
}

// Reserve удерживает доступный остаток под заказ.
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	reservationID := req.ReservationID
	if reservationID == "" {
		reservationID = ledger.NewReservationID()
	}

	item, err := h.ledger.ReserveStock(c.Param("sku"), req.Quantity, reservationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse{
		stockItemResponse: toStockItemResponse(item),
		ReservationID:     reservationID,
	})
}

// Release возвращает удержанный резерв в доступные.
func (h *InventoryHandler) Release(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	item, err := h.ledger.ReleaseStock(c.Param("sku"), req.Quantity, req.ReservationID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockItemResponse(item))
}

// Consume превращает резерв в постоянное списание.
func (h *InventoryHandler) Consume(c *gin.Context) {
	var req reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	item, err := h.ledger.ConsumeReservedStock(c.Param("sku"), req.Quantity, req.ReservationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockItemResponse(item))
}

// Restock пополняет позицию и сдвигает расписание пополнений.
func (h *InventoryHandler) Restock(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	item, err := h.ledger.ProcessRestock(c.Param("sku"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockItemResponse(item))
}

// Deactivate выводит позицию из оборота.
func (h *InventoryHandler) Deactivate(c *gin.Context) {
	item, err := h.ledger.DeactivateItem(c.Param("sku"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockItemResponse(item))
}

// ListLowStock возвращает активные позиции ниже порога low-stock.
func (h *InventoryHandler) ListLowStock(c *gin.Context) {
	items, err := h.ledger.ListLowStock()
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]stockItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, toStockItemResponse(item))
	}
	c.JSON(http.StatusOK, result)
}

// ListNeedingRestock возвращает позиции, требующие пополнения.
func (h *InventoryHandler) ListNeedingRestock(c *gin.Context) {
	levels, err := h.ledger.ListNeedingRestock()
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]stockLevelResponse, 0, len(levels))
	for _, level := range levels {
		result = append(result, toStockLevelResponse(level))
	}
	c.JSON(http.StatusOK, result)
}

// CheckAvailability сообщает, доступны ли все позиции запроса.
// Используется сервисом заказов при совместной проверке корзины.
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	var req availabilityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	for _, item := range req.Items {
		ok, err := h.ledger.IsInStock(item.SKUCode, item.Quantity)
		if err != nil {
			if domain.IsNotFound(err) {
				c.JSON(http.StatusOK, gin.H{"available": false})
				return
			}
			writeError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"available": false})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"available": true})
}

// UpdateInventory применяет знаковые дельты ко всем позициям запроса.
// Контракт зеркален CheckAvailability: отрицательная дельта — списание.
func (h *InventoryHandler) UpdateInventory(c *gin.Context) {
	var req availabilityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	for i, item := range req.Items {
		if _, err := h.ledger.AdjustStock(item.SKUCode, item.Quantity, "order delta"); err != nil {
			// Откатываем уже применённые дельты: вызов атомарен на уровне запроса.
			for _, applied := range req.Items[:i] {
				_, _ = h.ledger.AdjustStock(applied.SKUCode, -applied.Quantity, "order delta rollback")
			}
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func toStockItemResponse(item domain.StockItem) stockItemResponse {
	return stockItemResponse{
		SKUCode:           item.SKU,
		ProductID:         item.ProductID,
		Quantity:          item.Quantity,
		Reserved:          item.Reserved,
		Available:         item.Available(),
		LowStockThreshold: item.LowStockThreshold,
		RestockThreshold:  item.RestockThreshold,
		IsActive:          item.IsActive,
		Status:            string(item.LevelStatus()),
		LastRestockedAt:   item.LastRestockedAt,
		NextRestockAt:     item.NextRestockAt,
		Version:           item.Version,
	}
}

func toStockLevelResponse(level domain.StockLevel) stockLevelResponse {
	return stockLevelResponse{
		SKUCode:           level.SKU,
		CurrentLevel:      level.CurrentLevel,
		LowStockThreshold: level.LowStockThreshold,
		RestockThreshold:  level.RestockThreshold,
		Status:            string(level.Status),
	}
}
