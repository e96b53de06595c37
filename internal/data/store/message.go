package store

import (
	"database/sql"

	"github.com/google/uuid"

	"chatcache/internal/data/entity"
)

// Messages is the table type of messages. Rows are keyed by client UUID and
// indexed by server sid.
type Messages = Table[entity.Message, entity.MessagePatch]

func messageSchema() Schema[entity.Message] {
	return Schema[entity.Message]{
		Kind:     entity.KindMessage,
		KeyOf:    func(m entity.Message) string { return m.UUID },
		SetKey:   func(m *entity.Message, key string) { m.UUID = key },
		AltKeyOf: func(m entity.Message) string { return m.Sid },
		NewKey:   uuid.NewString,
		Validate: entity.ValidateMessage,
	}
}

var messageCodec = codec[entity.Message]{
	table:  "messages",
	keyCol: "uuid",
	load:   loadMessages,
	upsert: upsertMessage,
}

func upsertMessage(tx *sql.Tx, m entity.Message) error {
	_, err := tx.Exec(`
		INSERT INTO messages (
			uuid, sid, conversation_sid, author, body, direction, date_created, date_updated,
			message_index, send_status, media_sid, media_status, media_filename, media_content_type,
			media_size, media_uploaded_bytes, media_local_path, attributes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			sid = excluded.sid,
			conversation_sid = excluded.conversation_sid,
			author = excluded.author,
			body = excluded.body,
			direction = excluded.direction,
			date_created = excluded.date_created,
			date_updated = excluded.date_updated,
			message_index = excluded.message_index,
			send_status = excluded.send_status,
			media_sid = excluded.media_sid,
			media_status = excluded.media_status,
			media_filename = excluded.media_filename,
			media_content_type = excluded.media_content_type,
			media_size = excluded.media_size,
			media_uploaded_bytes = excluded.media_uploaded_bytes,
			media_local_path = excluded.media_local_path,
			attributes = excluded.attributes
	`,
		m.UUID, nullString(m.Sid), m.ConversationSid, nullString(m.Author), nullString(m.Body),
		nullString(string(m.Direction)), nullTime(m.DateCreated), nullTime(m.DateUpdated),
		m.Index, nullString(string(m.SendStatus)),
		nullString(m.MediaSid), nullString(string(m.MediaStatus)), nullString(m.MediaFilename),
		nullString(m.MediaContentType), nullInt64(m.MediaSize), nullInt64(m.MediaUploadedBytes),
		nullString(m.MediaLocalPath), nullString(m.Attributes),
	)
	return err
}

func loadMessages(db *sql.DB) ([]entity.Message, error) {
	rows, err := db.Query(`
		SELECT uuid, sid, conversation_sid, author, body, direction, date_created, date_updated,
			message_index, send_status, media_sid, media_status, media_filename, media_content_type,
			media_size, media_uploaded_bytes, media_local_path, attributes
		FROM messages
	`)
	if err != nil {
		return nil, err
	}
	return scanRows(rows, scanMessage)
}

func scanMessage(rows *sql.Rows) (entity.Message, error) {
	var m entity.Message
	var sid, author, body, direction, sendStatus sql.NullString
	var mediaSid, mediaStatus, mediaFilename, mediaContentType, mediaLocalPath, attrs sql.NullString
	var created, updated, index, mediaSize, uploaded sql.NullInt64

	err := rows.Scan(
		&m.UUID, &sid, &m.ConversationSid, &author, &body, &direction, &created, &updated,
		&index, &sendStatus, &mediaSid, &mediaStatus, &mediaFilename, &mediaContentType,
		&mediaSize, &uploaded, &mediaLocalPath, &attrs,
	)
	if err != nil {
		return m, err
	}

	m.Sid = sid.String
	m.Author = author.String
	m.Body = body.String
	m.Direction = entity.Direction(direction.String)
	m.DateCreated = parseNullTime(created)
	m.DateUpdated = parseNullTime(updated)
	m.Index = index.Int64
	m.SendStatus = entity.SendStatus(sendStatus.String)
	m.MediaSid = mediaSid.String
	m.MediaStatus = entity.MediaStatus(mediaStatus.String)
	m.MediaFilename = mediaFilename.String
	m.MediaContentType = mediaContentType.String
	m.MediaSize = mediaSize.Int64
	m.MediaUploadedBytes = uploaded.Int64
	m.MediaLocalPath = mediaLocalPath.String
	m.Attributes = attrs.String
	return m, nil
}
