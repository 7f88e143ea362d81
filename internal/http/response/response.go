package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eddykim0118/kivo/internal/platform/apierr"
	"github.com/eddykim0118/kivo/internal/platform/ctxutil"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code, RequestID: requestID(c)}})
}

// RespondAPIError maps err onto its HTTP status and stable code. Messages of
// 5xx errors are not echoed to the client.
func RespondAPIError(c *gin.Context, err error) {
	apiErr := apierr.FromDomain(err)
	if apiErr == nil {
		apiErr = apierr.New(http.StatusInternalServerError, apierr.CodeInternal, errors.New("unknown error"))
	}
	_ = c.Error(err)
	msg := apiErr.Error()
	if apiErr.Status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(apiErr.Status, ErrorEnvelope{Error: APIError{
		Message:   msg,
		Code:      apiErr.Code,
		Details:   apiErr.Details,
		RequestID: requestID(c),
	}})
}

func AbortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorEnvelope{Error: APIError{
		Message:   msg,
		Code:      "unauthorized",
		RequestID: requestID(c),
	}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

func requestID(c *gin.Context) string {
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		return td.RequestID
	}
	return ""
}
