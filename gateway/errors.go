package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohans/docgateway/storage"
	"github.com/mohans/docgateway/taskqueue"
)

// Fault kinds with a stable HTTP status each. Every error leaving a handler
// goes through writeError; nothing is swallowed.
const (
	faultValidation    = "validation_error"
	faultNotFound      = "not_found"
	faultForbidden     = "access_denied"
	faultBroker        = "broker_unavailable"
	faultTaskExecution = "task_execution_error"
	faultInternal      = "internal_error"
)

type errorBody struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	var tfe *taskqueue.TaskFailedError
	switch {
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, errorBody{Status: "error", ErrorCode: faultNotFound, Message: "task not found"})
	case errors.Is(err, taskqueue.ErrBrokerUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorBody{Status: "error", ErrorCode: faultBroker, Message: "task broker unavailable"})
	case errors.As(err, &tfe):
		c.JSON(http.StatusInternalServerError, errorBody{Status: "error", ErrorCode: faultTaskExecution, Message: tfe.Detail})
	case errors.Is(err, storage.ErrOutsideDocument):
		c.JSON(http.StatusForbidden, errorBody{Status: "error", ErrorCode: faultForbidden, Message: "access denied"})
	default:
		c.JSON(http.StatusInternalServerError, errorBody{Status: "error", ErrorCode: faultInternal, Message: err.Error()})
	}
}

func writeValidationError(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Status: "error", ErrorCode: faultValidation, Message: msg})
}

func writeNotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, errorBody{Status: "error", ErrorCode: faultNotFound, Message: msg})
}
