package inbox

import (
	"log"
)

// EventKind names the part of the state that changed.
type EventKind string

const (
	EventList           EventKind = "list"
	EventSelection      EventKind = "selection"
	EventContent        EventKind = "content"
	EventChannel        EventKind = "channel"
	EventNotice         EventKind = "notice"
	EventScrollToLatest EventKind = "scroll_to_latest"
)

// NoticeLevel is the severity of a transient notification.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-facing notification.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Event is delivered to listeners after the state changed.
type Event struct {
	Kind   EventKind `json:"kind"`
	Notice *Notice   `json:"notice,omitempty"`
}

// genericErrorMessage is shown when a collaborator failed without a message.
const genericErrorMessage = "Something went wrong. Please try again."

// Subscribe registers fn for every event and returns a function that removes it.
// Listeners are called without the controller lock held, so they may read a Snapshot.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Controller) emit(ev Event) {
	c.listenersMu.Lock()
	listeners := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (c *Controller) notifySuccess(message string) {
	c.emit(Event{Kind: EventNotice, Notice: &Notice{Level: NoticeSuccess, Message: message}})
}

// notifyError logs err and emits an error notice carrying its message.
func (c *Controller) notifyError(action string, err error) {
	message := errorMessage(err)
	log.Printf("Inbox: %s failed for company %s: %v", action, c.identity.CompanyID, err)
	c.emit(Event{Kind: EventNotice, Notice: &Notice{Level: NoticeError, Message: message}})
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return genericErrorMessage
	}
	return err.Error()
}
