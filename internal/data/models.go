package data

import "time"

// Article represents a single news article in the database.
type Article struct {
	ID            string    `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Summary       string    `db:"summary" json:"summary"`
	Content       string    `db:"content" json:"content"`
	Author        string    `db:"author" json:"author"`
	Date          time.Time `db:"published_at" json:"date"`
	Image         string    `db:"image" json:"image"`
	DetailPageURL string    `db:"detail_page_url" json:"detailPageUrl"`
}
