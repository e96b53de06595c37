package store

import (
	"database/sql"

	"chatcache/internal/data/entity"
)

// Conversations is the table type of conversations.
type Conversations = Table[entity.Conversation, entity.ConversationPatch]

func conversationSchema() Schema[entity.Conversation] {
	return Schema[entity.Conversation]{
		Kind:   entity.KindConversation,
		KeyOf:  func(c entity.Conversation) string { return c.Sid },
		SetKey: func(c *entity.Conversation, key string) { c.Sid = key },
	}
}

var conversationCodec = codec[entity.Conversation]{
	table:  "conversations",
	keyCol: "sid",
	load:   loadConversations,
	upsert: upsertConversation,
}

func upsertConversation(tx *sql.Tx, c entity.Conversation) error {
	_, err := tx.Exec(`
		INSERT INTO conversations (
			sid, friendly_name, unique_name, date_created, date_updated, created_by,
			participants_count, messages_count, unread_count, notification_level,
			last_message_sid, last_message_author, last_message_type, last_message_index, last_message_date,
			attributes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET
			friendly_name = excluded.friendly_name,
			unique_name = excluded.unique_name,
			date_created = excluded.date_created,
			date_updated = excluded.date_updated,
			created_by = excluded.created_by,
			participants_count = excluded.participants_count,
			messages_count = excluded.messages_count,
			unread_count = excluded.unread_count,
			notification_level = excluded.notification_level,
			last_message_sid = excluded.last_message_sid,
			last_message_author = excluded.last_message_author,
			last_message_type = excluded.last_message_type,
			last_message_index = excluded.last_message_index,
			last_message_date = excluded.last_message_date,
			attributes = excluded.attributes
	`,
		c.Sid, nullString(c.FriendlyName), nullString(c.UniqueName),
		nullTime(c.DateCreated), nullTime(c.DateUpdated), nullString(c.CreatedBy),
		c.ParticipantsCount, c.MessagesCount, c.UnreadCount, nullString(string(c.NotificationLevel)),
		nullString(c.LastMessage.Sid), nullString(c.LastMessage.Author), nullString(c.LastMessage.Type),
		c.LastMessage.Index, nullTime(c.LastMessage.Date),
		nullString(c.Attributes),
	)
	return err
}

func loadConversations(db *sql.DB) ([]entity.Conversation, error) {
	rows, err := db.Query(`
		SELECT sid, friendly_name, unique_name, date_created, date_updated, created_by,
			participants_count, messages_count, unread_count, notification_level,
			last_message_sid, last_message_author, last_message_type, last_message_index, last_message_date,
			attributes
		FROM conversations
	`)
	if err != nil {
		return nil, err
	}
	return scanRows(rows, scanConversation)
}

func scanConversation(rows *sql.Rows) (entity.Conversation, error) {
	var c entity.Conversation
	var friendlyName, uniqueName, createdBy, level, attrs sql.NullString
	var lastSid, lastAuthor, lastType sql.NullString
	var lastIndex sql.NullInt64
	var created, updated, lastDate sql.NullInt64

	err := rows.Scan(
		&c.Sid, &friendlyName, &uniqueName, &created, &updated, &createdBy,
		&c.ParticipantsCount, &c.MessagesCount, &c.UnreadCount, &level,
		&lastSid, &lastAuthor, &lastType, &lastIndex, &lastDate,
		&attrs,
	)
	if err != nil {
		return c, err
	}

	c.FriendlyName = friendlyName.String
	c.UniqueName = uniqueName.String
	c.DateCreated = parseNullTime(created)
	c.DateUpdated = parseNullTime(updated)
	c.CreatedBy = createdBy.String
	c.NotificationLevel = entity.NotificationLevel(level.String)
	c.LastMessage = entity.LastMessage{
		Sid:    lastSid.String,
		Author: lastAuthor.String,
		Type:   lastType.String,
		Index:  lastIndex.Int64,
		Date:   parseNullTime(lastDate),
	}
	c.Attributes = attrs.String
	return c, nil
}
