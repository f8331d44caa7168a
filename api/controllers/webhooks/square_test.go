package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	squarewebhook "github.com/jasskhinda/facility-billing/internal/webhooks/square"
	"github.com/jasskhinda/facility-billing/pkg/square"
)

const (
	testSecret = "whsec"
	testURL    = "https://billing.example.com/api/v1/webhooks/square"
)

const paymentEvent = `{"merchant_id":"M1","type":"payment.updated","event_id":"evt-1","data":{"type":"payment","id":"sq-1","object":{"payment":{"id":"sq-1","status":"COMPLETED","source_type":"BANK_ACCOUNT","updated_at":"2025-06-27T09:00:00Z"}}}}`

type fakeVerifier struct{}

func (fakeVerifier) VerifyWebhook(body []byte, header string) bool {
	return square.VerifySignature(testSecret, testURL, body, header)
}

type fakeSquareWebhookService struct {
	mu     sync.Mutex
	calls  int
	events []string
	err    error
}

func (f *fakeSquareWebhookService) HandleEvent(_ context.Context, event *squarewebhook.SquareWebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.events = append(f.events, event.EventID)
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *inMemoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fb:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func newDeliveries(t *testing.T, store *inMemoryStore) *squarewebhook.Deliveries {
	t.Helper()
	deliveries, err := squarewebhook.NewDeliveries(store, "square-webhook", time.Hour)
	require.NoError(t, err)
	return deliveries
}

func deliver(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(square.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSquareWebhookProcessesOnce(t *testing.T) {
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, fakeVerifier{}, newDeliveries(t, newInMemoryStore()), nil)
	body := []byte(paymentEvent)
	sig := square.ComputeSignature(testSecret, testURL, body)

	first := deliver(handler, body, sig)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := deliver(handler, body, sig)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1, service.calls)
	assert.Equal(t, []string{"evt-1"}, service.events)
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, fakeVerifier{}, newDeliveries(t, newInMemoryStore()), nil)
	body := []byte(paymentEvent)

	missing := deliver(handler, body, "")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)

	wrong := deliver(handler, body, square.ComputeSignature("other", testURL, body))
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	assert.Zero(t, service.calls)
}

func TestSquareWebhookRetriesAfterFailure(t *testing.T) {
	service := &fakeSquareWebhookService{err: errors.New("db down")}
	handler := SquareWebhook(service, fakeVerifier{}, newDeliveries(t, newInMemoryStore()), nil)
	body := []byte(paymentEvent)
	sig := square.ComputeSignature(testSecret, testURL, body)

	failed := deliver(handler, body, sig)
	require.Equal(t, http.StatusInternalServerError, failed.Code)

	service.err = nil
	retried := deliver(handler, body, sig)
	require.Equal(t, http.StatusOK, retried.Code)
	assert.Equal(t, 2, service.calls)
}

func TestSquareWebhookRejectsMalformedPayload(t *testing.T) {
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, fakeVerifier{}, newDeliveries(t, newInMemoryStore()), nil)
	body := []byte(`{"type":`)

	rec := deliver(handler, body, square.ComputeSignature(testSecret, testURL, body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, service.calls)
}

func TestSquareWebhookAsksForRedeliveryWhileLeased(t *testing.T) {
	store := newInMemoryStore()
	deliveries := newDeliveries(t, store)
	_, err := deliveries.Begin(context.Background(), "evt-1")
	require.NoError(t, err)

	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, fakeVerifier{}, deliveries, nil)
	body := []byte(paymentEvent)

	rec := deliver(handler, body, square.ComputeSignature(testSecret, testURL, body))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, service.calls)
}

func TestSquareWebhookRequiresCollaborators(t *testing.T) {
	body := []byte(paymentEvent)
	rec := deliver(SquareWebhook(&fakeSquareWebhookService{}, fakeVerifier{}, nil, nil), body, "sig")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
