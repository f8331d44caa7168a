package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jasskhinda/facility-billing/api/responses"
	"github.com/jasskhinda/facility-billing/internal/access"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

// IdempotencyHeader carries the client supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from a stored record.
const ReplayedHeader = "Idempotent-Replayed"

const (
	// reservationTTL bounds how long a crashed request blocks its key.
	reservationTTL       = 2 * time.Minute
	maxIdempotentBody    = 64 << 10
	maxIdempotencyKeyLen = 255
)

// IdempotencyPolicy is attached per route.
type IdempotencyPolicy struct {
	// TTL is how long a completed response stays replayable.
	TTL time.Duration
	// Required rejects requests without a key.
	Required bool
}

var (
	// TripPricing lets a retried price call return the first result.
	TripPricing = IdempotencyPolicy{TTL: 24 * time.Hour}
	// PaymentSubmission replays only when the caller sends a key; two
	// keyless submissions are two payments.
	PaymentSubmission = IdempotencyPolicy{TTL: 7 * 24 * time.Hour}
	// PaymentReview guards staff verify/reject decisions.
	PaymentReview = IdempotencyPolicy{TTL: 7 * 24 * time.Hour, Required: true}
)

// ReplayStore persists idempotency records. The redis client satisfies it.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Idempotent reserves the key before the handler runs so two concurrent
// requests with one key cannot both reach the payment processor. The loser
// gets a conflict until the winner's response is stored. A nil store
// disables the middleware.
func Idempotent(store ReplayStore, policy IdempotencyPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	records := replayRecords{store: store}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			switch {
			case clientKey == "" && policy.Required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case clientKey == "":
				next.ServeHTTP(w, r)
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprint(body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			reserved, err := records.reserve(ctx, key, fingerprint)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(ctx, records, key, fingerprint, logg, w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the handler has answered; bookkeeping must outlive a disconnect
			ctx = context.WithoutCancel(ctx)
			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				// 5xx stays retryable under the same key
				if err := records.release(ctx, key); err != nil {
					logError(ctx, logg, "release idempotency reservation", err)
				}
				return
			}
			err = records.complete(ctx, key, replayRecord{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}, policy.TTL)
			if err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func replay(ctx context.Context, records replayRecords, key, fingerprint string, logg *logger.Logger, w http.ResponseWriter) {
	record, err := records.load(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// released between the reservation attempt and this read
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is being retried; try again"))
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
	case record.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.Status == 0:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

// replayRecord is a reservation while Status is zero, afterwards the
// stored response.
type replayRecord struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type replayRecords struct {
	store ReplayStore
}

func (rr replayRecords) reserve(ctx context.Context, key, fingerprint string) (bool, error) {
	payload, err := json.Marshal(replayRecord{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return rr.store.SetNX(ctx, key, string(payload), reservationTTL)
}

func (rr replayRecords) load(ctx context.Context, key string) (replayRecord, error) {
	var record replayRecord
	raw, err := rr.store.Get(ctx, key)
	if err != nil {
		return record, err
	}
	err = json.Unmarshal([]byte(raw), &record)
	return record, err
}

func (rr replayRecords) complete(ctx context.Context, key string, record replayRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return rr.store.Set(ctx, key, string(payload), ttl)
}

func (rr replayRecords) release(ctx context.Context, key string) error {
	return rr.store.Del(ctx, key)
}

// replayScope keys records per actor and path so two facilities reusing a
// client-generated key never collide.
func replayScope(r *http.Request) string {
	actor, _ := access.ActorFrom(r.Context())
	return strings.Join([]string{actor.ID, r.Method, r.URL.Path}, "|")
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil && err != nil {
		logg.Error(ctx, msg, err)
	}
}
