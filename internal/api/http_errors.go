package api

import (
	"errors"
	"net/http"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

// httpStatusFor maps the domain error taxonomy onto HTTP status codes:
// gating violations and state conflicts are 409, bad input 400, missing
// resources 404, and a stage where every sub-task failed is a bad
// gateway because the agents behind us broke, not the caller.
func httpStatusFor(err error) int {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return http.StatusInternalServerError
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusBadRequest
	case core.ErrCatNotFound:
		return http.StatusNotFound
	case core.ErrCatPrecondition, core.ErrCatState:
		return http.StatusConflict
	case core.ErrCatStageFailure:
		return http.StatusBadGateway
	case core.ErrCatUnavailable:
		return http.StatusServiceUnavailable
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status := httpStatusFor(err)
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		s.respondJSON(w, status, map[string]interface{}{
			"error":    domErr.Message,
			"code":     domErr.Code,
			"category": string(domErr.Category),
		})
		return
	}
	s.respondError(w, status, err.Error())
}
