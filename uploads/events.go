package uploads

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
)

// Event names.
const (
	EventNameFileUploaded = "board.file.uploaded"
	EventNameFileDeleted  = "board.file.deleted"
)

// FileUploadedEvent is published after a file is stored or matched to an
// existing upload with the same content.
type FileUploadedEvent struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Kind         string    `json:"kind"`
	Size         int64     `json:"size"`
	Deduplicated bool      `json:"deduplicated"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Reasons carried by FileDeletedEvent.
const (
	ReasonDeleted  = "deleted"
	ReasonReleased = "released"
	ReasonSwept    = "swept"
)

// FileDeletedEvent is published after an upload's record and file are removed.
type FileDeletedEvent struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename,omitempty"`
	Reason    string    `json:"reason"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Events holds the events of one Manager, bound to its own bus.
type Events struct {
	FileUploaded event.Event[FileUploadedEvent]
	FileDeleted  event.Event[FileDeletedEvent]
}

var busCounter int64

// initEventBus creates the manager's bus: custom transport, Redis, or noop.
func (m *Manager) initEventBus(ctx context.Context) error {
	name := fmt.Sprintf("%s-uploads-%d", m.opts.serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error
	switch {
	case m.opts.eventTransport != nil:
		m.logger.Info("initializing upload event bus with custom transport")
		bus, err = event.NewBus(name, event.WithTransport(m.opts.eventTransport))
	case m.opts.redisClient != nil:
		m.logger.Info("initializing upload event bus with Redis transport")
		t, terr := eventredis.New(m.opts.redisClient)
		if terr != nil {
			return fmt.Errorf("create redis transport: %w", terr)
		}
		bus, err = event.NewBus(name, event.WithTransport(t))
	default:
		m.logger.Debug("initializing upload event bus with noop transport")
		bus, err = event.NewBus(name, event.WithTransport(noop.New()))
	}
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	events := &Events{
		FileUploaded: event.New[FileUploadedEvent](name + "." + EventNameFileUploaded),
		FileDeleted:  event.New[FileDeletedEvent](name + "." + EventNameFileDeleted),
	}
	if err := event.Register(ctx, bus, events.FileUploaded); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register FileUploaded: %w", err)
	}
	if err := event.Register(ctx, bus, events.FileDeleted); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register FileDeleted: %w", err)
	}

	m.bus = bus
	m.events = events
	return nil
}

// Publish failures are logged; the storage operation already succeeded.
func (m *Manager) publishUploaded(ctx context.Context, e FileUploadedEvent) {
	if err := m.events.FileUploaded.Publish(ctx, e); err != nil {
		m.logger.Warn("failed to publish event", "event", EventNameFileUploaded, "id", e.ID, "error", err)
	}
}

func (m *Manager) publishDeleted(ctx context.Context, e FileDeletedEvent) {
	if err := m.events.FileDeleted.Publish(ctx, e); err != nil {
		m.logger.Warn("failed to publish event", "event", EventNameFileDeleted, "id", e.ID, "error", err)
	}
}
