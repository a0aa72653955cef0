package handlers

import (
	"net/http"

	"github.com/pratik-mahalle/farmlink/internal/api/middleware"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/utils"
)

// requireUser returns the authenticated user id or writes a 401
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		utils.WriteError(w, errors.Unauthorized("Missing authentication token"))
		return "", false
	}
	return userID, true
}

// writeServiceError writes err as an error envelope. Failures that are not
// AppErrors are logged and reported as internal errors.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, msg string) {
	appErr := errors.AsAppError(err, msg)
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.ErrorWithErr(err, msg)
	}
	utils.WriteError(w, appErr)
}
