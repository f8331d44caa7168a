package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jasskhinda/facility-billing/pkg/config"
	"github.com/jasskhinda/facility-billing/pkg/logger"
)

// Client wraps the Pub/Sub v2 client for the billing topic and the invoice
// projection subscription.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	require   requirements
}

type requirements struct {
	topic        bool
	subscription bool
}

// Option declares which resources a process depends on. NewClient and Ping
// verify only those.
type Option func(*requirements)

// RequireTopic is for processes that publish billing events.
func RequireTopic() Option {
	return func(r *requirements) { r.topic = true }
}

// RequireSubscription is for processes that consume the projection feed.
func RequireSubscription() Option {
	return func(r *requirements) { r.subscription = true }
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// NewClient creates a Pub/Sub v2 client and checks the required resources
// exist, so a missing topic fails at boot rather than on the first publish.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	var req requirements
	for _, opt := range opts {
		opt(&req)
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: gcp.ProjectID, cfg: cfg, require: req}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project":           gcp.ProjectID,
			"requires_topic":        req.topic,
			"requires_subscription": req.subscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	opts := []option.ClientOption{}
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	return opts
}

// Ping checks that every required resource exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	if c.require.topic {
		if err := c.checkTopic(ctx); err != nil {
			return err
		}
	}
	if c.require.subscription {
		if err := c.checkSubscription(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context) error {
	topic := c.topicResourceName(c.cfg.BillingTopic)
	if topic == "" {
		return errors.New("pubsub billing topic is required")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
	return resourceError("topic", c.cfg.BillingTopic, err)
}

func (c *Client) checkSubscription(ctx context.Context) error {
	sub := c.subscriptionResourceName(c.cfg.ProjectionSubscription)
	if sub == "" {
		return errors.New("pubsub projection subscription is required")
	}
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub})
	return resourceError("subscription", c.cfg.ProjectionSubscription, err)
}

func resourceError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// ProjectionSubscription returns the subscriber feeding the invoice
// projection, with flow control taken from config.
func (c *Client) ProjectionSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.subscriptionResourceName(c.cfg.ProjectionSubscription)
	if fullName == "" {
		return nil
	}
	sub := c.client.Subscriber(fullName)
	applyReceiveSettings(&sub.ReceiveSettings, c.cfg)
	return sub
}

func applyReceiveSettings(settings *pubsub.ReceiveSettings, cfg config.PubSubConfig) {
	if cfg.MaxOutstanding > 0 {
		settings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	if cfg.ReceiveGoroutines > 0 {
		settings.NumGoroutines = cfg.ReceiveGoroutines
	}
}

// Publisher returns a publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return c.resourceName("subscriptions", name)
}

func (c *Client) topicResourceName(name string) string {
	return c.resourceName("topics", name)
}

// resourceName expands a short id to projects/<p>/<kind>/<id>; full resource
// names pass through.
func (c *Client) resourceName(kind, name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
