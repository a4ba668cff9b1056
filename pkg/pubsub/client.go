// Package pubsub opens the Pub/Sub v2 client that carries catalog change
// events from the outbox relay to the price history worker.
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

	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

var (
	errNoProject = errors.New("gcp project id is required")
	errNoTopic   = errors.New("pubsub catalog topic is required")
	errClosed    = errors.New("pubsub client not initialized")
)

type Client struct {
	ps      *pubsub.Client
	project string
	cfg     config.PubSubConfig
}

// NewClient connects and verifies the catalog topic, plus the price history
// subscription when one is configured.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errNoProject
	}
	if strings.TrimSpace(cfg.CatalogTopic) == "" {
		return nil, errNoTopic
	}

	ps, err := pubsub.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{ps: ps, project: project, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"topic": cfg.CatalogTopic, "subscription": cfg.PriceHistorySubscription}), "pubsub client initialized")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping looks up the configured topic and subscription through the admin
// clients.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errClosed
	}
	topic := resourceName(c.project, "topics", c.cfg.CatalogTopic)
	if _, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
		return missing("topic", c.cfg.CatalogTopic, err)
	}
	if sub := resourceName(c.project, "subscriptions", c.cfg.PriceHistorySubscription); sub != "" {
		if _, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub}); err != nil {
			return missing("subscription", c.cfg.PriceHistorySubscription, err)
		}
	}
	return nil
}

func missing(kind, name string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// Publisher returns a handle for a topic id or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	name := resourceName(c.project, "topics", topic)
	if name == "" {
		return nil
	}
	return c.ps.Publisher(name)
}

// PriceHistorySubscription returns the subscriber feeding the price history
// sink, or nil when none is configured.
func (c *Client) PriceHistorySubscription() *pubsub.Subscriber {
	if c == nil || c.ps == nil {
		return nil
	}
	name := resourceName(c.project, "subscriptions", c.cfg.PriceHistorySubscription)
	if name == "" {
		return nil
	}
	return c.ps.Subscriber(name)
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// resourceName expands an id to projects/{project}/{kind}/{id}. Full
// resource names pass through unchanged.
func resourceName(project, kind, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	return "projects/" + project + "/" + kind + "/" + id
}
