package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"fraudwallet-api/internal/models"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError maps domain errors onto HTTP statuses. Unknown errors
// become 500s without leaking internals into the response body.
func respondError(ctx *gin.Context, err error) {
	var frozen *models.WalletFrozenByPolicyError
	var invalidRange *models.InvalidRangeError

	switch {
	case errors.As(err, &frozen):
		ctx.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "Account frozen",
			Message: frozen.Error(),
		})
	case errors.Is(err, models.ErrWalletFrozen):
		ctx.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "Account frozen",
			Message: err.Error(),
		})
	case errors.Is(err, models.ErrInsufficientBalance):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Insufficient balance",
			Message: err.Error(),
		})
	case errors.Is(err, models.ErrAccountNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Account not found",
			Message: err.Error(),
		})
	case errors.Is(err, models.ErrTransactionNotFound):
		ctx.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Transaction not found",
			Message: err.Error(),
		})
	case errors.Is(err, models.ErrNotTransactionOwner):
		ctx.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "Transaction not accessible",
			Message: err.Error(),
		})
	case errors.Is(err, models.ErrInvalidStateTransition):
		ctx.JSON(http.StatusConflict, ErrorResponse{
			Error:   "Invalid state transition",
			Message: err.Error(),
		})
	case errors.As(err, &invalidRange):
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Message: invalidRange.Error(),
		})
	case errors.Is(err, models.ErrAccountAlreadyExists):
		ctx.JSON(http.StatusConflict, ErrorResponse{
			Error:   "Account already exists",
			Message: err.Error(),
		})
	case errors.Is(err, mongo.ErrNoDocuments):
		// Alert, device and location repositories report a missing record
		// with the driver sentinel.
		ctx.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Not found",
			Message: "The requested resource does not exist",
		})
	default:
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Message: "An unexpected error occurred",
		})
	}
}
