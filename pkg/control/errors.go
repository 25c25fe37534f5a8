package control

import (
	"net/http"

	"github.com/fnatlb/lipalloc/pkg/lipalloc"
)

// httpStatus maps an allocator Status onto the HTTP status code the control
// plane replies with. The JSON body always carries the precise Status string
// too, since the HTTP code alone is lossy (SPEC_FULL.md §6).
func httpStatus(s lipalloc.Status) int {
	switch s {
	case lipalloc.Ok:
		return http.StatusOK
	case lipalloc.Invalid:
		return http.StatusBadRequest
	case lipalloc.NoService, lipalloc.NotExist:
		return http.StatusNotFound
	case lipalloc.Exists:
		return http.StatusConflict
	case lipalloc.Busy:
		return http.StatusLocked
	case lipalloc.Resource:
		return http.StatusServiceUnavailable
	case lipalloc.NoMem:
		return http.StatusInternalServerError
	case lipalloc.NotSupported:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}
