package errutil

import "net/http"

// CoreStatus is a transport-agnostic status code. Services return it wrapped in
// a BaseError; the HTTP layer maps it with HTTPStatus.
type CoreStatus string

const (
	StatusUnknown              CoreStatus = "unknown"
	StatusBadRequest           CoreStatus = "bad-request"
	StatusValidationFailed     CoreStatus = "validation-failed"
	StatusUnauthorized         CoreStatus = "unauthorized"
	StatusForbidden            CoreStatus = "forbidden"
	StatusNotFound             CoreStatus = "not-found"
	StatusConflict             CoreStatus = "conflict"
	StatusUnprocessableEntity  CoreStatus = "unprocessable-entity"
	StatusTooManyRequests      CoreStatus = "too-many-requests"
	StatusTimeout              CoreStatus = "timeout"
	StatusInternal             CoreStatus = "internal"
	StatusNotImplemented       CoreStatus = "not-implemented"
	StatusBadGateway           CoreStatus = "bad-gateway"
	StatusServiceUnavailable   CoreStatus = "service-unavailable"

	StatusInsufficientFunds    CoreStatus = "insufficient-funds"
	StatusInvalidState         CoreStatus = "invalid-state"
	StatusNoFundsAvailable     CoreStatus = "no-funds-available"
	StatusVerificationFailed   CoreStatus = "verification-failed"
	StatusPayoutFailed         CoreStatus = "payout-failed"
	StatusConsistencyViolation CoreStatus = "consistency-violation"
)

func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusInvalidState:
		return http.StatusConflict
	case StatusUnprocessableEntity, StatusInsufficientFunds, StatusNoFundsAvailable:
		return http.StatusUnprocessableEntity
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway, StatusVerificationFailed, StatusPayoutFailed:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case StatusInternal, StatusConsistencyViolation:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
