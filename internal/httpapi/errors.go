package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ecom-core/internal/domain"
)

// errorResponse — единый формат тела ошибки API.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError отображает доменную ошибку на HTTP-статус.
//
// not-found -> 404, conflict (нарушенное защитное условие, дубликат,
// конфликт версий) -> 409, некорректный запрос -> 400, недоступный
// коллаборатор или разомкнутый breaker -> 503, остальное -> 500.
func writeError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case domain.IsConflict(err):
		c.JSON(http.StatusConflict, errorResponse{Error: "conflict", Message: err.Error()})
	case domain.IsInvalidOperation(err):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
	case domain.IsUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
	}
}
