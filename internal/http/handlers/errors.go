// Package handlers defines the HTTP error codes of the public API.
//
// Every error response carries one of these codes next to its status so
// clients can branch without parsing messages:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "remote_unavailable",
//	  "message": "remote unavailable: get posts: connection refused"
//	}
package handlers

import (
	"net/http"

	"github.com/tbourn/feedcache/internal/services"
)

const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeForbidden         = "forbidden"
	ErrCodeNotFound          = "not_found"
	ErrCodeRateLimited       = "too_many_requests"
	ErrCodeRemoteUnavailable = "remote_unavailable"
	ErrCodeInternal          = "internal_error"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)

// statusOf maps a service error kind to its HTTP status and code.
func statusOf(err error) (int, string) {
	switch services.Kind(err) {
	case "Unauthenticated":
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case "NotFound":
		return http.StatusNotFound, ErrCodeNotFound
	case "PermissionDenied":
		return http.StatusForbidden, ErrCodeForbidden
	case "ValidationFailed":
		return http.StatusBadRequest, ErrCodeBadRequest
	case "RemoteUnavailable":
		return http.StatusServiceUnavailable, ErrCodeRemoteUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
