package sse

import (
	"context"
	"sync"

	"ms-payments/internal/models"
)

// PaymentEventEmitter manages SSE connections and event broadcasting for payment events
type PaymentEventEmitter struct {
	// Shop channel clients map - key: shopID, value: slice of client channels
	shopClients     map[string][]chan models.PaymentEvent
	shopClientMutex sync.RWMutex

	// Order channel clients map - key: orderID, value: slice of client channels
	orderClients     map[string][]chan models.PaymentEvent
	orderClientMutex sync.RWMutex
}

// NewPaymentEventEmitter creates a new SSE event emitter for payment events
func NewPaymentEventEmitter() *PaymentEventEmitter {
	return &PaymentEventEmitter{
		shopClients:  make(map[string][]chan models.PaymentEvent),
		orderClients: make(map[string][]chan models.PaymentEvent),
	}
}

// SubscribeToShop adds a client to the shop's payment events
func (e *PaymentEventEmitter) SubscribeToShop(ctx context.Context, shopID string) chan models.PaymentEvent {
	clientChan := make(chan models.PaymentEvent, 10)

	e.shopClientMutex.Lock()
	e.shopClients[shopID] = append(e.shopClients[shopID], clientChan)
	e.shopClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeShopClient(shopID, clientChan)
	}()

	return clientChan
}

// SubscribeToOrder adds a client to the order's payment events
func (e *PaymentEventEmitter) SubscribeToOrder(ctx context.Context, orderID string) chan models.PaymentEvent {
	clientChan := make(chan models.PaymentEvent, 10)

	e.orderClientMutex.Lock()
	e.orderClients[orderID] = append(e.orderClients[orderID], clientChan)
	e.orderClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeOrderClient(orderID, clientChan)
	}()

	return clientChan
}

// PublishPaymentEvent broadcasts a payment event to all subscribed clients.
// The name satisfies the ledger's publisher interface so the emitter can sit
// next to the Kafka producer behind one fan-out.
func (e *PaymentEventEmitter) PublishPaymentEvent(event models.PaymentEvent) error {
	e.shopClientMutex.RLock()
	clients := e.shopClients[event.ShopID]
	e.shopClientMutex.RUnlock()

	for _, clientChan := range clients {
		// Non-blocking send to avoid slowing down emitter if client is slow
		select {
		case clientChan <- event:
		default:
			// Channel buffer full, skip this client for now
		}
	}

	e.orderClientMutex.RLock()
	orderClients := e.orderClients[event.OrderID]
	e.orderClientMutex.RUnlock()

	for _, clientChan := range orderClients {
		select {
		case clientChan <- event:
		default:
		}
	}

	return nil
}

// Helper methods to remove clients when they disconnect
func (e *PaymentEventEmitter) removeShopClient(shopID string, clientChan chan models.PaymentEvent) {
	e.shopClientMutex.Lock()
	defer e.shopClientMutex.Unlock()

	clients := e.shopClients[shopID]
	for i, ch := range clients {
		if ch == clientChan {
			e.shopClients[shopID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.shopClients[shopID]) == 0 {
		delete(e.shopClients, shopID)
	}
}

func (e *PaymentEventEmitter) removeOrderClient(orderID string, clientChan chan models.PaymentEvent) {
	e.orderClientMutex.Lock()
	defer e.orderClientMutex.Unlock()

	clients := e.orderClients[orderID]
	for i, ch := range clients {
		if ch == clientChan {
			e.orderClients[orderID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.orderClients[orderID]) == 0 {
		delete(e.orderClients, orderID)
	}
}

// GetShopClientCount returns the number of clients currently subscribed to a shop
func (e *PaymentEventEmitter) GetShopClientCount(shopID string) int {
	e.shopClientMutex.RLock()
	defer e.shopClientMutex.RUnlock()
	return len(e.shopClients[shopID])
}

// GetOrderClientCount returns the number of clients currently subscribed to an order
func (e *PaymentEventEmitter) GetOrderClientCount(orderID string) int {
	e.orderClientMutex.RLock()
	defer e.orderClientMutex.RUnlock()
	return len(e.orderClients[orderID])
}
