package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// InsertRound records a finished round and returns its ID.
func (db *DB) InsertRound(r *Round) (int64, error) {
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return 0, fmt.Errorf("encoding tags: %w", err)
	}
	result, err := db.conn.Exec(
		`INSERT INTO rounds
		(batch_id, round_index, status, prompt, title, description, tags, article_date, name,
		 article_path, image_path, cover_url, source_url, base_ref, ref, error, document, cover)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BatchID, r.Index, r.Status, r.Prompt, r.Title, r.Description, string(tags), r.Date, r.Name,
		r.ArticlePath, r.ImagePath, r.CoverURL, r.SourceURL, r.BaseRef, r.Ref, r.Error, r.Document, r.Cover,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting round %s/%d: %w", r.BatchID, r.Index, err)
	}
	return result.LastInsertId()
}

const roundColumns = `id, batch_id, round_index, status, prompt, COALESCE(title, ''), COALESCE(description, ''),
	COALESCE(tags, '[]'), COALESCE(article_date, ''), COALESCE(name, ''), COALESCE(article_path, ''),
	COALESCE(image_path, ''), COALESCE(cover_url, ''), COALESCE(source_url, ''), COALESCE(base_ref, ''),
	COALESCE(ref, ''), COALESCE(error, ''), COALESCE(created_at, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(s scanner, extra ...any) (*Round, error) {
	var r Round
	var tags string
	dest := []any{&r.ID, &r.BatchID, &r.Index, &r.Status, &r.Prompt, &r.Title, &r.Description,
		&tags, &r.Date, &r.Name, &r.ArticlePath, &r.ImagePath, &r.CoverURL, &r.SourceURL,
		&r.BaseRef, &r.Ref, &r.Error, &r.CreatedAt}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		r.Tags = nil
	}
	return &r, nil
}

// GetRound returns a round including its document and cover, or nil if
// no such round exists.
func (db *DB) GetRound(id int64) (*Round, error) {
	var document sql.NullString
	var cover []byte
	row := db.conn.QueryRow(
		"SELECT "+roundColumns+", document, cover FROM rounds WHERE id = ?", id,
	)
	r, err := scanRound(row, &document, &cover)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Document = document.String
	r.Cover = cover
	return r, nil
}

// GetRoundCover returns only the cover image bytes of a round.
func (db *DB) GetRoundCover(id int64) ([]byte, error) {
	var cover []byte
	err := db.conn.QueryRow("SELECT cover FROM rounds WHERE id = ?", id).Scan(&cover)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cover, err
}

// ListRounds returns the newest rounds first, without documents or covers.
// A limit of zero or less returns every round.
func (db *DB) ListRounds(limit int) ([]Round, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.Query(
		"SELECT "+roundColumns+" FROM rounds ORDER BY id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *r)
	}
	return rounds, rows.Err()
}

// GetBatchRounds returns the rounds of one batch in round order.
func (db *DB) GetBatchRounds(batchID string) ([]Round, error) {
	rows, err := db.conn.Query(
		"SELECT "+roundColumns+" FROM rounds WHERE batch_id = ? ORDER BY round_index", batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *r)
	}
	return rounds, rows.Err()
}

// GetStats summarizes round history and the topic ledger.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	err := db.conn.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'published' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM rounds`,
	).Scan(&s.TotalRounds, &s.Published, &s.Failed)
	if err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM used_topics").Scan(&s.UsedTopics); err != nil {
		return nil, err
	}
	err = db.conn.QueryRow(
		"SELECT COALESCE(ref, '') FROM rounds WHERE status = 'published' ORDER BY id DESC LIMIT 1",
	).Scan(&s.LastRef)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &s, nil
}
