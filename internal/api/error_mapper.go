package api

import (
	"net/http"

	"github.com/mridulgoel03/ETF-trading-project/internal/engine"
)

// ErrorCode represents unified API error codes
type ErrorCode string

const (
	ErrorCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrorCodeIndexExists      ErrorCode = "INDEX_EXISTS"
	ErrorCodeDuplicateRequest ErrorCode = "DUPLICATE_REQUEST"
	ErrorCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrorCodeEngineStopped    ErrorCode = "ENGINE_STOPPED"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// MapEngineErrorToHTTP maps engine error codes to HTTP status codes and error responses
func MapEngineErrorToHTTP(errorCode engine.ErrorCode, err error) (int, ErrorResponse) {
	switch errorCode {
	case engine.ErrorCodeNone:
		return http.StatusOK, ErrorResponse{}

	case engine.ErrorCodeInvalidArgument:
		return http.StatusBadRequest, ErrorResponse{
			Code:    string(ErrorCodeInvalidArgument),
			Message: getErrorMessage(err, "invalid argument"),
		}

	case engine.ErrorCodeNotFound:
		return http.StatusNotFound, ErrorResponse{
			Code:    string(ErrorCodeNotFound),
			Message: getErrorMessage(err, "not found"),
		}

	case engine.ErrorCodeInvalidState:
		return http.StatusConflict, ErrorResponse{
			Code:    string(ErrorCodeInvalidState),
			Message: getErrorMessage(err, "invalid state transition"),
		}

	case engine.ErrorCodeIndexExists:
		return http.StatusConflict, ErrorResponse{
			Code:    string(ErrorCodeIndexExists),
			Message: getErrorMessage(err, "index already exists"),
		}

	case engine.ErrorCodeDuplicateRequest:
		return http.StatusConflict, ErrorResponse{
			Code:    string(ErrorCodeDuplicateRequest),
			Message: getErrorMessage(err, "duplicate request with different payload"),
		}

	case engine.ErrorCodeEngineStopped:
		return http.StatusServiceUnavailable, ErrorResponse{
			Code:    string(ErrorCodeEngineStopped),
			Message: getErrorMessage(err, "engine stopped"),
		}

	default:
		return http.StatusInternalServerError, ErrorResponse{
			Code:    string(ErrorCodeInternalError),
			Message: getErrorMessage(err, "internal error"),
		}
	}
}

func getErrorMessage(err error, defaultMsg string) string {
	if err != nil {
		return err.Error()
	}
	return defaultMsg
}
