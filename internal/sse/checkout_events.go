package sse

import (
	"context"
	"sync"

	"ms-storefront/internal/models"
)

// CheckoutEventEmitter fans order status events out to SSE subscribers
type CheckoutEventEmitter struct {
	// key: order number
	orderClients map[string][]chan models.OrderEvent
	// key: user id
	userClients map[string][]chan models.OrderEvent
	mu          sync.RWMutex
}

func NewCheckoutEventEmitter() *CheckoutEventEmitter {
	return &CheckoutEventEmitter{
		orderClients: make(map[string][]chan models.OrderEvent),
		userClients:  make(map[string][]chan models.OrderEvent),
	}
}

// SubscribeToOrder streams events of one order until ctx is done
func (e *CheckoutEventEmitter) SubscribeToOrder(ctx context.Context, orderNumber string) <-chan models.OrderEvent {
	return e.subscribe(ctx, e.orderClients, orderNumber)
}

// SubscribeToUser streams events of every order placed by a user
func (e *CheckoutEventEmitter) SubscribeToUser(ctx context.Context, userID string) <-chan models.OrderEvent {
	return e.subscribe(ctx, e.userClients, userID)
}

func (e *CheckoutEventEmitter) subscribe(ctx context.Context, clients map[string][]chan models.OrderEvent, key string) <-chan models.OrderEvent {
	clientChan := make(chan models.OrderEvent, 10)

	e.mu.Lock()
	clients[key] = append(clients[key], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(clients, key, clientChan)
	}()

	return clientChan
}

// EmitOrderEvent broadcasts an event to the order and user subscribers.
// Slow clients miss events rather than block the emitter.
func (e *CheckoutEventEmitter) EmitOrderEvent(event models.OrderEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.orderClients[event.OrderNumber] {
		select {
		case clientChan <- event:
		default:
		}
	}
	for _, clientChan := range e.userClients[event.UserID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *CheckoutEventEmitter) remove(clients map[string][]chan models.OrderEvent, key string, clientChan chan models.OrderEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := clients[key]
	for i, ch := range list {
		if ch == clientChan {
			clients[key] = append(list[:i], list[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}

func (e *CheckoutEventEmitter) OrderClientCount(orderNumber string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.orderClients[orderNumber])
}

func (e *CheckoutEventEmitter) UserClientCount(userID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.userClients[userID])
}
