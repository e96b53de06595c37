package store

// schema contains the cache tables. Dates are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	sid TEXT PRIMARY KEY,
	friendly_name TEXT,
	unique_name TEXT,
	date_created INTEGER,
	date_updated INTEGER,
	created_by TEXT,
	participants_count INTEGER NOT NULL DEFAULT 0,
	messages_count INTEGER NOT NULL DEFAULT 0,
	unread_count INTEGER NOT NULL DEFAULT 0,
	notification_level TEXT,
	last_message_sid TEXT,
	last_message_author TEXT,
	last_message_type TEXT,
	last_message_index INTEGER,
	last_message_date INTEGER,
	attributes TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	uuid TEXT PRIMARY KEY,
	sid TEXT UNIQUE,
	conversation_sid TEXT NOT NULL,
	author TEXT,
	body TEXT,
	direction TEXT,
	date_created INTEGER,
	date_updated INTEGER,
	message_index INTEGER,
	send_status TEXT,
	media_sid TEXT,
	media_status TEXT,
	media_filename TEXT,
	media_content_type TEXT,
	media_size INTEGER,
	media_uploaded_bytes INTEGER,
	media_local_path TEXT,
	attributes TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_sid, message_index);

CREATE TABLE IF NOT EXISTS participants (
	sid TEXT PRIMARY KEY,
	conversation_sid TEXT NOT NULL,
	identity TEXT,
	channel TEXT,
	attributes TEXT,
	last_read_message_index INTEGER
);

CREATE INDEX IF NOT EXISTS idx_participants_conversation ON participants(conversation_sid);

CREATE TABLE IF NOT EXISTS media (
	sid TEXT PRIMARY KEY,
	message_sid TEXT,
	conversation_sid TEXT,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size INTEGER,
	category TEXT
);

CREATE INDEX IF NOT EXISTS idx_media_conversation ON media(conversation_sid);

CREATE TABLE IF NOT EXISTS media_cache (
	sid TEXT PRIMARY KEY,
	local_path TEXT NOT NULL,
	content_type TEXT,
	size INTEGER,
	stored_at INTEGER
);
`
