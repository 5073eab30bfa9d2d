// Package schema defines the SQL tables the production backend uses.
package schema

// Schema is the database schema, in CockroachDB/Postgres dialect. The
// collection id sequence starts above the reserved ids of the well-known
// collections, which are seeded here.
const Schema = `
CREATE SEQUENCE IF NOT EXISTS collections_id_seq START 100;

CREATE TABLE IF NOT EXISTS collections (
	id INT PRIMARY KEY DEFAULT nextval('collections_id_seq'),
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS user_collections (
	user_id BIGINT NOT NULL,
	collection_id INT NOT NULL,
	modified BIGINT NOT NULL,
	PRIMARY KEY (user_id, collection_id)
);

CREATE TABLE IF NOT EXISTS bso (
	user_id BIGINT NOT NULL,
	collection_id INT NOT NULL,
	id TEXT NOT NULL,
	sortindex INT,
	payload TEXT NOT NULL DEFAULT '',
	payload_size INT NOT NULL DEFAULT 0,
	modified BIGINT NOT NULL,
	expiry BIGINT NOT NULL,
	PRIMARY KEY (user_id, collection_id, id)
);

CREATE INDEX IF NOT EXISTS bso_modified_idx ON bso (user_id, collection_id, modified);
CREATE INDEX IF NOT EXISTS bso_expiry_idx ON bso (expiry);

CREATE TABLE IF NOT EXISTS batches (
	user_id BIGINT NOT NULL,
	collection_id INT NOT NULL,
	id TEXT NOT NULL,
	modified BIGINT NOT NULL,
	bsos TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, collection_id, id)
);

INSERT INTO collections (id, name)
VALUES
	(1, 'clients'),
	(2, 'crypto'),
	(3, 'forms'),
	(4, 'history'),
	(5, 'keys'),
	(6, 'meta'),
	(7, 'bookmarks'),
	(8, 'prefs'),
	(9, 'tabs'),
	(10, 'passwords'),
	(11, 'addons'),
	(12, 'addresses'),
	(13, 'creditcards')
ON CONFLICT (id) DO NOTHING;
`
