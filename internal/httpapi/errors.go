package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[goIdentity.Kind]int{
	goIdentity.KindInvalidCredential:      http.StatusUnauthorized,
	goIdentity.KindInvalidToken:           http.StatusUnauthorized,
	goIdentity.KindNotFound:               http.StatusNotFound,
	goIdentity.KindDeactivated:            http.StatusForbidden,
	goIdentity.KindInsufficientPermission: http.StatusForbidden,
	goIdentity.KindInvalidRoleHierarchy:   http.StatusForbidden,
	goIdentity.KindDuplicateIdentity:      http.StatusConflict,
	goIdentity.KindOTPNotIssued:           http.StatusBadRequest,
	goIdentity.KindOTPMismatch:            http.StatusUnauthorized,
	goIdentity.KindOTPExpired:             http.StatusUnauthorized,
	goIdentity.KindInvalidRequest:         http.StatusBadRequest,
	goIdentity.KindUnknownRole:            http.StatusBadRequest,
	goIdentity.KindRateLimited:            http.StatusTooManyRequests,
	goIdentity.KindUnavailable:            http.StatusServiceUnavailable,
}

var kindMessage = map[goIdentity.Kind]string{
	goIdentity.KindInvalidCredential:      "The supplied credentials are not valid.",
	goIdentity.KindInvalidToken:           "The token is missing, expired or revoked.",
	goIdentity.KindNotFound:               "No account matches that identifier.",
	goIdentity.KindDeactivated:            "This account has been deactivated.",
	goIdentity.KindInsufficientPermission: "You are not allowed to perform this action.",
	goIdentity.KindInvalidRoleHierarchy:   "That role change is not allowed.",
	goIdentity.KindDuplicateIdentity:      "An account with that identifier already exists.",
	goIdentity.KindOTPNotIssued:           "No code has been requested for this phone.",
	goIdentity.KindOTPMismatch:            "The code is not correct.",
	goIdentity.KindOTPExpired:             "The code has expired. Request a new one.",
	goIdentity.KindInvalidRequest:         "The request is malformed.",
	goIdentity.KindUnknownRole:            "That role does not exist.",
	goIdentity.KindRateLimited:            "Too many attempts. Try again later.",
	goIdentity.KindUnavailable:            "The service is temporarily unavailable.",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a stable error kind. Internal errors
// are logged and answered with a generic body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := goIdentity.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorBody{
			Error:   string(goIdentity.KindInternal),
			Message: "An internal error occurred.",
		})
		return
	}
	writeJSON(w, status, ErrorBody{Error: string(kind), Message: kindMessage[kind]})
}
