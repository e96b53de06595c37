package store

import (
	"database/sql"

	"chatcache/internal/data/entity"
)

// MediaTable is the table type of attachment descriptors.
type MediaTable = Table[entity.Media, entity.MediaPatch]

func mediaSchema() Schema[entity.Media] {
	return Schema[entity.Media]{
		Kind:     entity.KindMedia,
		KeyOf:    func(m entity.Media) string { return m.Sid },
		SetKey:   func(m *entity.Media, key string) { m.Sid = key },
		Validate: entity.ValidateMedia,
	}
}

var mediaCodec = codec[entity.Media]{
	table:  "media",
	keyCol: "sid",
	load:   loadMedia,
	upsert: upsertMedia,
}

func upsertMedia(tx *sql.Tx, m entity.Media) error {
	_, err := tx.Exec(`
		INSERT INTO media (sid, message_sid, conversation_sid, filename, content_type, size, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET
			message_sid = excluded.message_sid,
			conversation_sid = excluded.conversation_sid,
			filename = excluded.filename,
			content_type = excluded.content_type,
			size = excluded.size,
			category = excluded.category
	`, m.Sid, nullString(m.MessageSid), nullString(m.ConversationSid), m.Filename, m.ContentType,
		nullInt64(m.Size), nullString(string(m.Category)))
	return err
}

func loadMedia(db *sql.DB) ([]entity.Media, error) {
	rows, err := db.Query(`
		SELECT sid, message_sid, conversation_sid, filename, content_type, size, category
		FROM media
	`)
	if err != nil {
		return nil, err
	}
	return scanRows(rows, func(rows *sql.Rows) (entity.Media, error) {
		var m entity.Media
		var messageSid, conversationSid, category sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&m.Sid, &messageSid, &conversationSid, &m.Filename, &m.ContentType, &size, &category); err != nil {
			return m, err
		}
		m.MessageSid = messageSid.String
		m.ConversationSid = conversationSid.String
		m.Size = size.Int64
		m.Category = entity.MediaCategory(category.String)
		return m, nil
	})
}
