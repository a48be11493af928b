package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
	"github.com/vladislavdragonenkov/ecom-core/internal/service/order"
)

// OrderHandler обслуживает REST-поверхность заказов.
type OrderHandler struct {
	orders *order.Service
}

// NewOrderHandler создаёт handler заказов.
func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{orders: svc}
}

type createOrderRequest struct {
	CustomerID string             `json:"customerId" binding:"required"`
	Currency   string             `json:"currency"`
	Items      []orderItemRequest `json:"items" binding:"required"`
}

type orderItemRequest struct {
	ProductID      string `json:"productId"`
	SKUCode        string `json:"skuCode" binding:"required"`
	Quantity       int64  `json:"quantity" binding:"required"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
}

type updateStatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Message string `json:"message"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderItemResponse struct {
	ProductID      string `json:"productId,omitempty"`
	SKUCode        string `json:"skuCode"`
	Quantity       int64  `json:"quantity"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
	LineTotalMinor int64  `json:"lineTotalMinor"`
}

type statusHistoryResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type orderResponse struct {
	ID            string                  `json:"id"`
	OrderNumber   string                  `json:"orderNumber"`
	CustomerID    string                  `json:"customerId"`
	Status        string                  `json:"status"`
	Currency      string                  `json:"currency,omitempty"`
	TotalMinor    int64                   `json:"totalMinor"`
	Items         []orderItemResponse     `json:"items"`
	StatusHistory []statusHistoryResponse `json:"statusHistory,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
	CancelledAt   *time.Time              `json:"cancelledAt,omitempty"`
}

// CreateOrder запускает сагу создания заказа.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	params := order.CreateParams{
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
	}
	for _, item := range req.Items {
		params.Items = append(params.Items, order.ItemParams{
			ProductID:      item.ProductID,
			SKU:            item.SKUCode,
			Qty:            item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}

	created, err := h.orders.CreateOrder(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(created))
}

// GetOrder возвращает заказ с журналом статусов.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	found, err := h.orders.GetOrder(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(found))
}

// GetOrderByNumber возвращает заказ по человекочитаемому номеру.
func (h *OrderHandler) GetOrderByNumber(c *gin.Context) {
	found, err := h.orders.GetOrderByNumber(c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(found))
}

// ListCustomerOrders возвращает страницу заказов клиента.
func (h *OrderHandler) ListCustomerOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	orders, err := h.orders.ListCustomerOrders(c.Param("customerId"), page, size)
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, result)
}

// UpdateStatus применяет переход статуса, запрошенный оператором.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	updated, err := h.orders.UpdateStatus(c.Param("id"), domain.OrderStatus(req.Status), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(updated))
}

// CancelOrder отменяет заказ с компенсацией списанного остатка.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	// Тело опционально: отмена без причины допустима.
	_ = c.ShouldBindJSON(&req)

	cancelled, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(cancelled))
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		Currency:    o.Currency,
		TotalMinor:  o.TotalMinor,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		CancelledAt: o.CancelledAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:      item.ProductID,
			SKUCode:        item.SKU,
			Quantity:       item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			LineTotalMinor: item.LineTotalMinor(),
		})
	}
	for _, entry := range o.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, statusHistoryResponse{
			Status:    string(entry.Status),
			Message:   entry.Message,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}
