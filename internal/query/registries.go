package query

import (
	waLog "go.mau.fi/whatsmeow/util/log"

	"chatcache/internal/data/entity"
	"chatcache/internal/data/store"
	"chatcache/internal/infra/metrics"
)

// Registries holds one registry per entity kind of a store.
type Registries struct {
	Conversations *Registry[entity.Conversation]
	Messages      *Registry[entity.Message]
	Participants  *Registry[entity.Participant]
	Media         *Registry[entity.Media]
}

// NewRegistries creates the registries of s.
func NewRegistries(s *store.Store, m *metrics.Metrics, log waLog.Logger) *Registries {
	log = log.Sub("Query")
	return &Registries{
		Conversations: NewRegistry[entity.Conversation](s.Conversations, string(entity.KindConversation), m, log),
		Messages:      NewRegistry[entity.Message](s.Messages, string(entity.KindMessage), m, log),
		Participants:  NewRegistry[entity.Participant](s.Participants, string(entity.KindParticipant), m, log),
		Media:         NewRegistry[entity.Media](s.Media, string(entity.KindMedia), m, log),
	}
}
