// Package events defines the node's observability interface: a small set
// of named events any external front-end (UI, logger, metrics exporter)
// can subscribe to, emitted synchronously and never re-entering the
// emitter.
package events

// Name identifies an event kind from §6's observability interface.
type Name string

const (
	PeerConnected         Name = "peer-connected"
	PeerDisconnected      Name = "peer-disconnected"
	TransactionSubmitted  Name = "transaction-submitted"
	TransactionReceived   Name = "transaction-received"
	BlockAdded            Name = "block-added"
	LeaderChanged         Name = "leader-changed"
	FileShared            Name = "file-shared"
	FileAvailable         Name = "file-available"
	DownloadProgress      Name = "download-progress"
	DownloadCompleted     Name = "download-completed"
	Log                   Name = "log"
)

// Event is one observability notification. Data is event-specific and
// documented at each emit site; it is typically the struct or id most
// relevant to Name.
type Event struct {
	Name Name
	Data interface{}
}

// Emitter publishes events to whatever observers are currently
// subscribed. Emission MUST be synchronous and MUST NOT re-enter the
// emitter from within a handler.
type Emitter struct {
	handlers []func(Event)
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a handler invoked for every emitted event.
func (e *Emitter) Subscribe(handler func(Event)) {
	e.handlers = append(e.handlers, handler)
}

// Emit synchronously invokes every subscribed handler with the event.
func (e *Emitter) Emit(name Name, data interface{}) {
	ev := Event{Name: name, Data: data}
	for _, h := range e.handlers {
		h(ev)
	}
}
