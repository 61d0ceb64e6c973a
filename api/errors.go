package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
)

// statusFor maps an error code to the HTTP status clients see.
//
//	validation_failed, currency mismatch       400
//	not_assigned_approver                      403
//	not_found                                  404
//	duplicate, conflict, transitions           409
//	computation_failed                         422
//	routing_failed                             503 (fix the directory, then retry)
//	anything else                              500
func statusFor(err error) int {
	switch incentive.CodeOf(err) {
	case incentive.CodeValidation:
		return http.StatusBadRequest
	case incentive.CodeNotAssignedApprover:
		return http.StatusForbidden
	case incentive.CodeNotFound:
		return http.StatusNotFound
	case incentive.CodeDuplicate, incentive.CodeConcurrency, incentive.CodeInvalidTransition,
		incentive.CodeAlreadyVoided, incentive.CodeCannotVoidPaid:
		return http.StatusConflict
	case incentive.CodeComputation:
		return http.StatusUnprocessableEntity
	case incentive.CodeRouting:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as an ErrorResponse. Unclassified errors are logged and
// their text is not echoed back.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
		writeError(w, status, "Internal error", "", nil)
		return
	}
	writeError(w, status, http.StatusText(status), string(incentive.CodeOf(err)), err)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
