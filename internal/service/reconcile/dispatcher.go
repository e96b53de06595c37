package reconcile

import (
	"context"
	"errors"
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/remote"
)

// ErrUnknownEvent is returned for event kinds or types the engine does not
// handle.
var ErrUnknownEvent = errors.New("unknown event")

// Dispatcher routes remote events to Service handlers.
type Dispatcher struct {
	service *Service
	log     waLog.Logger
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(service *Service, log waLog.Logger) *Dispatcher {
	return &Dispatcher{
		service: service,
		log:     log.Sub("Dispatcher"),
	}
}

// Handle routes an event to the matching handler.
func (d *Dispatcher) Handle(ctx context.Context, evt remote.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if evt.Key == "" {
		return fmt.Errorf("%w: %s %s without key", ErrMalformedEvent, evt.Kind, evt.Type)
	}

	s := d.service
	switch evt.Kind {
	case entity.KindConversation:
		switch evt.Type {
		case remote.EventAdded:
			d.log.Debugf("Conversation %s added", evt.Key)
			return s.OnConversationAdded(ctx, evt)
		case remote.EventUpdated:
			return s.OnConversationUpdated(ctx, evt)
		case remote.EventDeleted:
			d.log.Infof("Conversation %s deleted", evt.Key)
			return s.DeleteConversation(evt.Key)
		}

	case entity.KindMessage:
		switch evt.Type {
		case remote.EventAdded:
			d.log.Debugf("Message %s added in %s", evt.Key, evt.ConversationSid)
			return s.OnMessageAdded(ctx, evt)
		case remote.EventUpdated:
			return s.OnMessageUpdated(ctx, evt)
		case remote.EventDeleted:
			return s.OnMessageDeleted(ctx, evt)
		}

	case entity.KindParticipant:
		switch evt.Type {
		case remote.EventAdded, remote.EventUpdated:
			return s.OnParticipantChanged(ctx, evt)
		case remote.EventDeleted:
			return s.OnParticipantDeleted(ctx, evt)
		}
	}

	return fmt.Errorf("%w: %s %s", ErrUnknownEvent, evt.Kind, evt.Type)
}
