package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/omnipdfs/relay/internal/ierr"
	"go.uber.org/zap"
)

var statusByCode = map[ierr.ErrorCode]int{
	ierr.ErrorCodeInvalidArgument:    http.StatusBadRequest,
	ierr.ErrorCodeNotFound:           http.StatusNotFound,
	ierr.ErrorCodeAlreadyExists:      http.StatusConflict,
	ierr.ErrorCodeFailedPrecondition: http.StatusConflict,
	ierr.ErrorCodePermissionDenied:   http.StatusForbidden,
	ierr.ErrorCodeUnauthenticated:    http.StatusUnauthorized,
	ierr.ErrorCodeInternal:           http.StatusInternalServerError,
}

func writeError(logger *zap.Logger, w http.ResponseWriter, err error) {
	var coded ierr.Error
	if !errors.As(err, &coded) {
		logger.Error("unexpected error", zap.Error(err))

		coded = ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
	}

	status, ok := statusByCode[coded.Code]
	if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(logger, w, status, coded)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
