package sse

import (
	"context"
	"sync"

	"ms-booking/internal/models"
)

// CheckInEmitter fans check-in events out to door dashboards subscribed per event.
type CheckInEmitter struct {
	eventClients     map[string][]chan models.CheckInEvent
	eventClientMutex sync.RWMutex
}

func NewCheckInEmitter() *CheckInEmitter {
	return &CheckInEmitter{
		eventClients: make(map[string][]chan models.CheckInEvent),
	}
}

// SubscribeToEvent adds a client to an event's check-in feed. The channel is
// closed once ctx is done.
func (e *CheckInEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.CheckInEvent {
	clientChan := make(chan models.CheckInEvent, 10)

	e.eventClientMutex.Lock()
	e.eventClients[eventID] = append(e.eventClients[eventID], clientChan)
	e.eventClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeEventClient(eventID, clientChan)
	}()

	return clientChan
}

// CheckedIn broadcasts to every subscriber of the ticket's event.
func (e *CheckInEmitter) CheckedIn(_ context.Context, ev models.CheckInEvent) {
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()

	for _, clientChan := range e.eventClients[ev.EventID] {
		// slow clients miss events rather than block the gate
		select {
		case clientChan <- ev:
		default:
		}
	}
}

func (e *CheckInEmitter) removeEventClient(eventID string, clientChan chan models.CheckInEvent) {
	e.eventClientMutex.Lock()
	defer e.eventClientMutex.Unlock()

	clients := e.eventClients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.eventClients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.eventClients[eventID]) == 0 {
		delete(e.eventClients, eventID)
	}
}

func (e *CheckInEmitter) EventClientCount(eventID string) int {
	e.eventClientMutex.RLock()
	defer e.eventClientMutex.RUnlock()
	return len(e.eventClients[eventID])
}
