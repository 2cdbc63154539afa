package database

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id          uuid        PRIMARY KEY,
    audio_file  text        NOT NULL,
    text        text        NOT NULL DEFAULT '',
    created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at
    ON transcriptions (created_at DESC, id DESC);
`

// InitSchema creates the transcriptions table and its listing index on a
// fresh database.
// The "transcriptions" table is used as the marker for an initialized schema.
func (db *DB) InitSchema(ctx context.Context) error {
	var exists bool
	err := db.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'transcriptions')`,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		db.log.Debug().Msg("schema already initialized, skipping")
		return nil
	}

	db.log.Info().Msg("fresh database detected, applying schema")
	if _, err := db.q.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	db.log.Info().Msg("schema applied successfully")
	return nil
}
