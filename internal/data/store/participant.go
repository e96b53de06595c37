package store

import (
	"database/sql"

	"chatcache/internal/data/entity"
)

// Participants is the table type of conversation members.
type Participants = Table[entity.Participant, entity.ParticipantPatch]

func participantSchema() Schema[entity.Participant] {
	return Schema[entity.Participant]{
		Kind:     entity.KindParticipant,
		KeyOf:    func(p entity.Participant) string { return p.Sid },
		SetKey:   func(p *entity.Participant, key string) { p.Sid = key },
		Validate: entity.ValidateParticipant,
	}
}

var participantCodec = codec[entity.Participant]{
	table:  "participants",
	keyCol: "sid",
	load:   loadParticipants,
	upsert: upsertParticipant,
}

// IsTyping is not a column.
func upsertParticipant(tx *sql.Tx, p entity.Participant) error {
	_, err := tx.Exec(`
		INSERT INTO participants (sid, conversation_sid, identity, channel, attributes, last_read_message_index)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET
			conversation_sid = excluded.conversation_sid,
			identity = excluded.identity,
			channel = excluded.channel,
			attributes = excluded.attributes,
			last_read_message_index = excluded.last_read_message_index
	`, p.Sid, p.ConversationSid, nullString(p.Identity), nullString(string(p.Channel)),
		nullString(p.Attributes), p.LastReadMessageIndex)
	return err
}

func loadParticipants(db *sql.DB) ([]entity.Participant, error) {
	rows, err := db.Query(`
		SELECT sid, conversation_sid, identity, channel, attributes, last_read_message_index
		FROM participants
	`)
	if err != nil {
		return nil, err
	}
	return scanRows(rows, func(rows *sql.Rows) (entity.Participant, error) {
		var p entity.Participant
		var identity, channel, attrs sql.NullString
		var lastRead sql.NullInt64
		if err := rows.Scan(&p.Sid, &p.ConversationSid, &identity, &channel, &attrs, &lastRead); err != nil {
			return p, err
		}
		p.Identity = identity.String
		p.Channel = entity.Channel(channel.String)
		p.Attributes = attrs.String
		p.LastReadMessageIndex = lastRead.Int64
		return p, nil
	})
}
