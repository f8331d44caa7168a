package square

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	// Square rejects payment idempotency keys longer than this.
	maxIdempotencyKeyLen = 45
)

var errAccessTokenRequired = errors.New("square access token is required")

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client is the billing service's view of the Square API: customers, vaulted
// cards and payments at a single location, plus webhook verification.
type Client struct {
	sdk           *sqclient.Client
	environment   string
	locationID    string
	webhookSecret string
	webhookURL    string
	logg          *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be %q or %q, got %q", sandboxEnv, productionEnv, env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square location id is required")
	}

	opts := []sqoption.RequestOption{
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(token),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, sqoption.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	c := &Client{
		sdk:           sqclient.NewClient(opts...),
		environment:   env,
		locationID:    location,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		webhookURL:    strings.TrimSpace(cfg.WebhookURL),
		logg:          logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "square_location": location}), "square client initialized")
	return c, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

// DeriveIdempotencyKey maps a caller supplied key onto one Square accepts.
// The same scope and key always yield the same result.
func DeriveIdempotencyKey(scope, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if scope != "" {
		key = scope + ":" + key
	}
	if len(key) <= maxIdempotencyKeyLen {
		return key
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func idempotencyKey(kind, provided string) string {
	if provided = strings.TrimSpace(provided); provided != "" {
		return provided
	}
	return kind + "-" + uuid.NewString()
}

func (c *Client) CreateCustomer(ctx context.Context, params CustomerCreateParams) (*sq.Customer, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	req := params.toSquareRequest(idempotencyKey("customer", params.IdempotencyKey))
	return call(ctx, c, "create_customer", map[string]any{"reference_id": params.ReferenceID},
		func(ctx context.Context) (*sq.Customer, error) {
			resp, err := c.sdk.Customers.Create(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp.GetCustomer(), nil
		})
}

// SearchCustomer returns the customer with exactly this reference id, or nil.
func (c *Client) SearchCustomer(ctx context.Context, referenceID string) (*sq.Customer, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, nil
	}
	limit := int64(1)
	req := &sq.SearchCustomersRequest{
		Query: &sq.CustomerQuery{
			Filter: &sq.CustomerFilter{ReferenceID: &sq.CustomerTextFilter{Exact: &referenceID}},
		},
		Limit: &limit,
	}
	return call(ctx, c, "search_customer", map[string]any{"reference_id": referenceID},
		func(ctx context.Context) (*sq.Customer, error) {
			resp, err := c.sdk.Customers.Search(ctx, req)
			if err != nil {
				return nil, err
			}
			if found := resp.GetCustomers(); len(found) > 0 {
				return found[0], nil
			}
			return nil, nil
		})
}

// EnsureCustomer finds the facility's customer by reference id and creates
// it on first use.
func (c *Client) EnsureCustomer(ctx context.Context, params CustomerCreateParams) (*sq.Customer, error) {
	existing, err := c.SearchCustomer(ctx, params.ReferenceID)
	if err != nil || existing != nil {
		return existing, err
	}
	return c.CreateCustomer(ctx, params)
}

func (c *Client) CreateCard(ctx context.Context, params CardCreateParams) (*sq.Card, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	req := params.toSquareRequest(idempotencyKey("card", params.IdempotencyKey))
	return call(ctx, c, "create_card", map[string]any{"customer_id": params.CustomerID},
		func(ctx context.Context) (*sq.Card, error) {
			resp, err := c.sdk.Cards.Create(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp.GetCard(), nil
		})
}

// CreatePayment charges a vaulted card or a bank account source at the
// configured location unless params name another one.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	req := params.toSquareRequest(idempotencyKey("payment", params.IdempotencyKey))
	fields := map[string]any{
		"customer_id":  params.CustomerID,
		"reference_id": params.ReferenceID,
		"amount_cents": params.AmountCents,
	}
	return call(ctx, c, "create_payment", fields, func(ctx context.Context) (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	req := &sq.GetPaymentsRequest{PaymentID: paymentID}
	return call(ctx, c, "get_payment", map[string]any{"payment_id": paymentID},
		func(ctx context.Context) (*sq.Payment, error) {
			resp, err := c.sdk.Payments.Get(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp.GetPayment(), nil
		})
}

// call runs one SDK request with timing, redacted logging and error
// translation shared by every operation.
func call[T any](ctx context.Context, c *Client, op string, fields map[string]any, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || c.sdk == nil {
		return zero, errAccessTokenRequired
	}
	logFields := map[string]any{"square_op": op}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logg.WithFields(ctx, logFields)

	start := time.Now()
	resp, err := fn(ctx)
	ctx = c.logg.WithField(ctx, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		translated := translateError(err, op)
		c.logg.Error(ctx, "square request failed", translated)
		return zero, translated
	}
	c.logg.Debug(ctx, "square request succeeded")
	return resp, nil
}

var sensitiveFields = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone", "account"}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveFields {
		if strings.Contains(lower, marker) {
			return "[REDACTED]"
		}
	}
	return value
}
