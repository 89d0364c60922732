package broker

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"plant_monitor/internal/config"
	"plant_monitor/internal/logger"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

const (
	keepAliveSeconds       = 30
	sessionExpirySeconds   = 60
	defaultSubscriptionQoS = 1
)

// Client is a reconnecting MQTT v5 client. Registered subscriptions are
// re-established on every reconnect.
type Client struct {
	cm  *autopaho.ConnectionManager
	log *logger.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

var (
	_ Publisher  = (*Client)(nil)
	_ Subscriber = (*Client)(nil)
)

// Connect dials the broker and waits for the first successful session.
func Connect(ctx context.Context, cfg config.Broker, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(fmt.Sprintf("mqtt://%s", cfg.Addr()))
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}

	c := &Client{
		log:  log,
		subs: make(map[string]Handler),
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     keepAliveSeconds,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         sessionExpirySeconds,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Infow("mqtt_connected", "broker", cfg.Addr())
			c.resubscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			log.Errorw("mqtt_connect_failed", "err", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) {
				log.Errorw("mqtt_client_error", "err", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				log.Infow("mqtt_server_disconnect", "reason_code", d.ReasonCode)
			},
		},
	}
	if cfg.Username != "" {
		pahoCfg.ConnectUsername = cfg.Username
		pahoCfg.ConnectPassword = []byte(cfg.Password)
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("create mqtt connection: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return nil, fmt.Errorf("await mqtt connection: %w", err)
	}
	c.cm = cm
	return c, nil
}

// Publish sends one payload at QoS 1.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := c.cm.Publish(ctx, &paho.Publish{
		QoS:     defaultSubscriptionQoS,
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter and subscribes on the
// live session. The registration survives reconnects.
func (c *Client) Subscribe(ctx context.Context, filter string, h Handler) error {
	c.mu.Lock()
	c.subs[filter] = h
	c.mu.Unlock()

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: defaultSubscriptionQoS},
		},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

// Close tears down the connection, letting in-flight operations finish.
func (c *Client) Close(ctx context.Context) error {
	return c.cm.Disconnect(ctx)
}

func (c *Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	c.mu.Lock()
	var handler Handler
	for filter, h := range c.subs {
		if topicMatches(filter, pr.Packet.Topic) {
			handler = h
			break
		}
	}
	c.mu.Unlock()

	if handler == nil {
		return false, nil
	}
	handler(Message{Topic: pr.Packet.Topic, Payload: pr.Packet.Payload})
	return true, nil
}

func (c *Client) resubscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	c.mu.Lock()
	filters := make([]string, 0, len(c.subs))
	for f := range c.subs {
		filters = append(filters, f)
	}
	c.mu.Unlock()

	for _, f := range filters {
		if _, err := cm.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{
				{Topic: f, QoS: defaultSubscriptionQoS},
			},
		}); err != nil {
			c.log.Errorw("mqtt_resubscribe_failed", "filter", f, "err", err)
		}
	}
}
