package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/types"
)

// ParseUUIDParam reads a uuid route parameter.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter required").WithDetails(map[string]any{"field": key})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "path parameter must be a uuid").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// ParseMonthParam reads a YYYY-MM route parameter.
func ParseMonthParam(r *http.Request, key string) (types.Month, error) {
	month, err := types.ParseMonth(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil {
		return types.Month{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "month must be formatted YYYY-MM").WithDetails(map[string]any{"field": key})
	}
	return month, nil
}
