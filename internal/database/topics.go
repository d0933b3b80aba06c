package database

// MarkTopicUsed records that a headline was turned into an article.
// Marking the same URL twice is not an error.
func (db *DB) MarkTopicUsed(url, title string) error {
	_, err := db.conn.Exec(
		"INSERT OR IGNORE INTO used_topics (url, title) VALUES (?, ?)", url, title,
	)
	return err
}

// IsTopicUsed reports whether url has already been written about.
func (db *DB) IsTopicUsed(url string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM used_topics WHERE url = ?", url).Scan(&count)
	return count > 0, err
}
