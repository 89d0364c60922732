package broker

import (
	"fmt"

	"plant_monitor/internal/logger"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// StartEmbedded runs an in-process MQTT broker on addr, used for
// single-binary deployments and tests. Caller closes the returned
// server on shutdown.
func StartEmbedded(addr string, log *logger.Logger) (*mochi.Server, error) {
	server := mochi.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add broker auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: addr,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("add broker listener on %s: %w", addr, err)
	}
	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("start embedded broker: %w", err)
	}

	log.Infow("embedded_broker_started", "addr", addr)
	return server, nil
}
