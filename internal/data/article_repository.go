package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrArticleNotFound is returned when no row matches the requested id.
var ErrArticleNotFound = errors.New("article not found")

const articleColumns = `id, title, summary, content, author, published_at, image, detail_page_url`

// SQLArticleRepository is a concrete implementation of the ArticleRepository interface using sqlx.
// Queries are written with '?' placeholders and rebound for the connected driver.
type SQLArticleRepository struct {
	db *sqlx.DB
}

// NewSQLArticleRepository creates a new SQLArticleRepository.
func NewSQLArticleRepository(db *sqlx.DB) *SQLArticleRepository {
	return &SQLArticleRepository{db: db}
}

// ListArticles returns articles newest first. A limit <= 0 returns every row.
func (r *SQLArticleRepository) ListArticles(ctx context.Context, limit int) ([]*Article, error) {
	articles := []*Article{}
	query := `SELECT ` + articleColumns + ` FROM articles ORDER BY published_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if err := r.db.SelectContext(ctx, &articles, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// GetArticleByID retrieves a single article by its id.
func (r *SQLArticleRepository) GetArticleByID(ctx context.Context, id string) (*Article, error) {
	var article Article
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = ?`
	if err := r.db.GetContext(ctx, &article, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("article with id '%s': %w", id, ErrArticleNotFound)
		}
		return nil, fmt.Errorf("failed to get article by id: %w", err)
	}
	return &article, nil
}

// CreateArticle inserts a new article and returns the row as stored.
func (r *SQLArticleRepository) CreateArticle(ctx context.Context, article *Article) (*Article, error) {
	query := `INSERT INTO articles (` + articleColumns + `)
		VALUES (:id, :title, :summary, :content, :author, :published_at, :image, :detail_page_url)`
	if _, err := r.db.NamedExecContext(ctx, query, article); err != nil {
		return nil, fmt.Errorf("failed to execute create article query: %w", err)
	}
	// MySQL has no RETURNING clause, so every dialect reads the row back.
	return r.GetArticleByID(ctx, article.ID)
}

// UpdateArticle writes the editable fields of an existing article and returns the stored row.
// id, published_at and detail_page_url are never written here.
func (r *SQLArticleRepository) UpdateArticle(ctx context.Context, article *Article) (*Article, error) {
	query := `UPDATE articles
		SET title = :title, summary = :summary, content = :content, author = :author, image = :image
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, article); err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}
	// RowsAffected is not checked: MySQL reports 0 for an update that changes nothing.
	return r.GetArticleByID(ctx, article.ID)
}

// UpdateDetailPageURL rewrites only the detail page URL of an article.
func (r *SQLArticleRepository) UpdateDetailPageURL(ctx context.Context, id, url string) error {
	query := `UPDATE articles SET detail_page_url = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), url, id); err != nil {
		return fmt.Errorf("failed to update detail page url: %w", err)
	}
	return nil
}

// DeleteArticle removes an article by id. Deleting a missing id is not an error.
func (r *SQLArticleRepository) DeleteArticle(ctx context.Context, id string) error {
	query := `DELETE FROM articles WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), id); err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLArticleRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
