package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Transcription is one persisted transcript. Records are never updated;
// the JSON keys match what the history UI reads.
type Transcription struct {
	ID        string    `json:"_id"`
	AudioFile string    `json:"audioFile"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsertTranscription stores a new record. The id is generated here and
// created_at is assigned by the database.
func (db *DB) InsertTranscription(ctx context.Context, audioFile, text string) (*Transcription, error) {
	t := &Transcription{
		ID:        uuid.NewString(),
		AudioFile: audioFile,
		Text:      text,
	}
	err := db.q.QueryRow(ctx, `
		INSERT INTO transcriptions (id, audio_file, text)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, t.ID, t.AudioFile, t.Text).Scan(&t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transcription: %w", err)
	}
	return t, nil
}

// ListTranscriptions returns every record, newest first.
func (db *DB) ListTranscriptions(ctx context.Context) ([]Transcription, error) {
	rows, err := db.q.Query(ctx, `
		SELECT id::text, audio_file, text, created_at
		FROM transcriptions
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transcription, error) {
		var t Transcription
		err := row.Scan(&t.ID, &t.AudioFile, &t.Text, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan transcriptions: %w", err)
	}
	if out == nil {
		out = []Transcription{}
	}
	return out, nil
}

// DeleteAllTranscriptions removes every record and returns how many were removed.
func (db *DB) DeleteAllTranscriptions(ctx context.Context) (int64, error) {
	tag, err := db.q.Exec(ctx, `DELETE FROM transcriptions`)
	if err != nil {
		return 0, fmt.Errorf("delete transcriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}
