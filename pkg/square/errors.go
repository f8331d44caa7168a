package square

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

// translateError turns a Square failure into a processor error carrying the
// HTTP status and Square error codes. A reused idempotency key, or a 409,
// becomes CodeIdempotency so the caller can surface the duplicate.
func translateError(err error, op string) error {
	message := fmt.Sprintf("square %s failed", strings.ReplaceAll(op, "_", " "))
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeProcessor, err, message)
	}

	code := pkgerrors.CodeProcessor
	if apiErr.StatusCode == http.StatusConflict {
		code = pkgerrors.CodeIdempotency
	}
	squareCodes := make([]string, 0, 1)
	for _, detail := range squareErrors(apiErr) {
		squareCodes = append(squareCodes, string(detail.GetCode()))
		if detail.GetCode() == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeIdempotency
		}
	}
	return pkgerrors.Wrap(code, err, message).WithDetails(map[string]any{
		"http_status":  apiErr.StatusCode,
		"square_codes": squareCodes,
	})
}

// squareErrors decodes the {"errors": [...]} body the SDK keeps as the
// wrapped error's text.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
