package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/potrack/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

// Upstream ERP message types consumed by the bridge worker
const (
	ErpPOImported     = "POImported"
	ErpFinanceChanged = "FinanceStatusChanged"
)

// ErpMessage is the common structure of messages on the ERP queue
type ErpMessage struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// ServiceBusBridge consumes upstream ERP messages from an Azure Service Bus
// queue so external systems can inject purchase orders and finance changes
// without talking to the HTTP API.
type ServiceBusBridge struct {
	client    *azservicebus.Client
	receiver  *azservicebus.Receiver
	sender    *azservicebus.Sender
	queueName string
	enabled   bool
}

// NewServiceBusBridge creates a bridge for the configured queue. When no
// connection string is configured the bridge is disabled and ProcessMessages
// blocks until the context is cancelled, so local development needs no Azure
// account.
func NewServiceBusBridge(cfg config.AzureConfig) (*ServiceBusBridge, error) {
	if cfg.QueueConnStr == "" {
		log.Warn().Msg("Azure Service Bus connection string not set, ERP bridge disabled")
		return &ServiceBusBridge{enabled: false}, nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	receiver, err := client.NewReceiverForQueue(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus receiver: %w", err)
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &ServiceBusBridge{
		client:    client,
		receiver:  receiver,
		sender:    sender,
		queueName: cfg.QueueName,
		enabled:   true,
	}, nil
}

// ProcessMessages receives from the queue until the context is cancelled,
// invoking handle for each message. Failed messages are abandoned so the
// queue redelivers them.
func (b *ServiceBusBridge) ProcessMessages(ctx context.Context, handle func(ctx context.Context, msg *ErpMessage) error) error {
	if !b.enabled {
		<-ctx.Done()
		return nil
	}

	for {
		messages, err := b.receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Failed to receive Service Bus messages")
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			var erp ErpMessage
			if err := json.Unmarshal(msg.Body, &erp); err != nil {
				log.Error().Err(err).Msg("Dropping malformed ERP message")
				// Poison message, never going to parse
				_ = b.receiver.CompleteMessage(ctx, msg, nil)
				continue
			}

			if err := handle(ctx, &erp); err != nil {
				log.Error().
					Err(err).
					Str("event_type", erp.EventType).
					Msg("Failed to process ERP message")
				_ = b.receiver.AbandonMessage(ctx, msg, nil)
				continue
			}

			if err := b.receiver.CompleteMessage(ctx, msg, nil); err != nil {
				log.Error().Err(err).Msg("Failed to complete ERP message")
			}
		}
	}
}

// Send enqueues an ERP message, used by integration tooling and smoke tests
func (b *ServiceBusBridge) Send(ctx context.Context, eventType string, data interface{}) error {
	if !b.enabled {
		log.Info().Str("event_type", eventType).Msg("[disabled bridge] ERP message dropped")
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal ERP payload: %w", err)
	}

	body, err := json.Marshal(ErpMessage{EventType: eventType, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal ERP message: %w", err)
	}

	return b.sender.SendMessage(ctx, &azservicebus.Message{
		Body: body,
		ApplicationProperties: map[string]interface{}{
			"source": "potrack-bridge",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}, nil)
}

// Close closes the receiver, sender and client
func (b *ServiceBusBridge) Close() error {
	if !b.enabled {
		return nil
	}

	ctx := context.Background()
	if b.receiver != nil {
		if err := b.receiver.Close(ctx); err != nil {
			return err
		}
	}
	if b.sender != nil {
		if err := b.sender.Close(ctx); err != nil {
			return err
		}
	}
	if b.client != nil {
		return b.client.Close(ctx)
	}
	return nil
}
