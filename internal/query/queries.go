package query

import (
	"time"

	"chatcache/internal/data/entity"
)

// AllConversations selects every conversation, most recently active first.
func AllConversations() Query[entity.Conversation] {
	return Query[entity.Conversation]{
		ID: "conversations",
		Less: func(a, b entity.Conversation) bool {
			return lastActivity(a).After(lastActivity(b))
		},
	}
}

// ConversationBySid selects one conversation.
func ConversationBySid(sid string) Query[entity.Conversation] {
	return Query[entity.Conversation]{
		ID:    "conversation:" + sid,
		Match: func(c entity.Conversation) bool { return c.Sid == sid },
	}
}

// MessagesInConversation selects the messages of a conversation in index
// order. Unconfirmed messages have no index yet and sort last by creation.
func MessagesInConversation(conversationSid string) Query[entity.Message] {
	return Query[entity.Message]{
		ID:    "messages:" + conversationSid,
		Match: func(m entity.Message) bool { return m.ConversationSid == conversationSid },
		Less:  messageOrder,
	}
}

// MessageByUUID selects one message by client identifier.
func MessageByUUID(uuid string) Query[entity.Message] {
	return Query[entity.Message]{
		ID:    "message:" + uuid,
		Match: func(m entity.Message) bool { return m.UUID == uuid },
	}
}

// ParticipantsInConversation selects the members of a conversation.
func ParticipantsInConversation(conversationSid string) Query[entity.Participant] {
	return Query[entity.Participant]{
		ID:    "participants:" + conversationSid,
		Match: func(p entity.Participant) bool { return p.ConversationSid == conversationSid },
		Less:  func(a, b entity.Participant) bool { return a.Identity < b.Identity },
	}
}

// MediaInConversation selects the attachments of a conversation.
func MediaInConversation(conversationSid string) Query[entity.Media] {
	return Query[entity.Media]{
		ID:    "media:" + conversationSid,
		Match: func(m entity.Media) bool { return m.ConversationSid == conversationSid },
	}
}

func lastActivity(c entity.Conversation) time.Time {
	switch {
	case !c.LastMessage.Date.IsZero():
		return c.LastMessage.Date
	case !c.DateUpdated.IsZero():
		return c.DateUpdated
	}
	return c.DateCreated
}

func messageOrder(a, b entity.Message) bool {
	if a.Confirmed() != b.Confirmed() {
		return a.Confirmed()
	}
	if a.Confirmed() {
		return a.Index < b.Index
	}
	return a.DateCreated.Before(b.DateCreated)
}
