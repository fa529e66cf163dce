package handler

import (
	"net/http"

	"github.com/cortexai/finops-insight/internal/errs"
)

// httpStatus maps an error kind onto the status of the tool response.
// The envelope is returned in the body either way.
func httpStatus(kind errs.Kind) int {
	switch kind {
	case "":
		return http.StatusOK
	case errs.KindInvalidParameter, errs.KindInvalidQuery:
		return http.StatusBadRequest
	case errs.KindPermissionDenied:
		return http.StatusForbidden
	case errs.KindUnsupportedOperation:
		return http.StatusNotImplemented
	case errs.KindTranslationRejected:
		return http.StatusUnprocessableEntity
	case errs.KindBackendUnavailable, errs.KindModelUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
