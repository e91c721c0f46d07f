package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/metrics"
	"github.com/isdelr/telemed-portal/internal/models"
)

// PostServiceProvider defines the interface for the post and comment lifecycle.
type PostServiceProvider interface {
	CreatePost(ctx context.Context, actor *models.User, input PostInput) (models.Post, error)
	EditPost(ctx context.Context, actor *models.User, id int64, input PostInput) (models.Post, error)
	DeletePost(ctx context.Context, actor *models.User, id int64) error
	GetPost(ctx context.Context, actor *models.User, id int64) (models.Post, error)
	ListPosts(ctx context.Context, actor *models.User, page, pageSize int) (models.PostPage, error)
	Latest(ctx context.Context, actor *models.User, n int) ([]models.Post, error)
	AddComment(ctx context.Context, actor *models.User, postID int64, text string) (models.Comment, error)
	ListComments(ctx context.Context, postID int64) ([]models.Comment, error)
}

// PostInput holds the editable fields of a post.
type PostInput struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Body     string `json:"body"`
	ImgURL   string `json:"imgUrl"`
	Draft    bool   `json:"draft"`
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PostService provides business logic for posts and their comments.
type PostService struct {
	db       *database.DB
	events   EventServiceProvider
	notifier Notifier
	feed     CommentFeed
}

// NewPostService creates a new PostService. notifier and feed may be nil.
func NewPostService(db *database.DB, events EventServiceProvider, notifier Notifier, feed CommentFeed) *PostService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if feed == nil {
		feed = nopFeed{}
	}
	return &PostService{db: db, events: events, notifier: notifier, feed: feed}
}

const postSelect = `
	SELECT p.id, p.title, p.subtitle, p.body, p.img_url, p.author_id, u.first_name, u.last_name,
		p.draft, p.created_at, p.edited_at
	FROM posts p
	JOIN users u ON u.id = p.author_id`

// CreatePost stores a new post authored by the admin actor.
func (s *PostService) CreatePost(ctx context.Context, actor *models.User, input PostInput) (models.Post, error) {
	if !actor.IsAdmin() {
		return models.Post{}, ErrForbidden
	}
	if err := validatePost(input); err != nil {
		return models.Post{}, err
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO posts (title, subtitle, body, img_url, author_id, draft, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		strings.TrimSpace(input.Title), input.Subtitle, input.Body, input.ImgURL, actor.ID, input.Draft, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.Post{}, fmt.Errorf("%w: a post with this title", ErrDuplicate)
		}
		return models.Post{}, storeErr("create post", err)
	}

	recordEvent(ctx, s.events, "post.create", "info", fmt.Sprintf("Post '%s' created.", input.Title), id)
	return s.getPost(ctx, id)
}

// EditPost updates the mutable fields of a post and stamps edited_at. The author and
// creation time never change.
func (s *PostService) EditPost(ctx context.Context, actor *models.User, id int64, input PostInput) (models.Post, error) {
	if !actor.IsAdmin() {
		return models.Post{}, ErrForbidden
	}
	if err := validatePost(input); err != nil {
		return models.Post{}, err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE posts
		SET title = ?, subtitle = ?, body = ?, img_url = ?, draft = ?, edited_at = ?
		WHERE id = ?`),
		strings.TrimSpace(input.Title), input.Subtitle, input.Body, input.ImgURL, input.Draft, time.Now().UTC(), id,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.Post{}, fmt.Errorf("%w: a post with this title", ErrDuplicate)
		}
		return models.Post{}, storeErr("edit post", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Post{}, storeErr("edit post", err)
	}
	if affected == 0 {
		return models.Post{}, fmt.Errorf("post %w", ErrNotFound)
	}

	recordEvent(ctx, s.events, "post.update", "info", fmt.Sprintf("Post '%s' updated.", input.Title), id)
	return s.getPost(ctx, id)
}

// DeletePost removes a post and all of its comments in one transaction.
func (s *PostService) DeletePost(ctx context.Context, actor *models.User, id int64) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	var title string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.db.Rebind("SELECT title FROM posts WHERE id = ?"), id).Scan(&title)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("post %w", ErrNotFound)
		}
		if err != nil {
			return storeErr("load post", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind("DELETE FROM comments WHERE post_id = ?"), id); err != nil {
			return storeErr("delete comments", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind("DELETE FROM posts WHERE id = ?"), id); err != nil {
			return storeErr("delete post", err)
		}
		return nil
	})
	if err != nil {
		var storeError *StoreError
		if errors.Is(err, ErrNotFound) || errors.As(err, &storeError) {
			return err
		}
		return storeErr("delete post", err)
	}

	recordEvent(ctx, s.events, "post.delete", "warn", fmt.Sprintf("Post '%s' was deleted.", title), id)
	return nil
}

// GetPost retrieves a post with its author's name. Drafts are visible to the admin only.
func (s *PostService) GetPost(ctx context.Context, actor *models.User, id int64) (models.Post, error) {
	post, err := s.getPost(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if post.Draft && !actor.IsAdmin() {
		return models.Post{}, fmt.Errorf("post %w", ErrNotFound)
	}
	return post, nil
}

func (s *PostService) getPost(ctx context.Context, id int64) (models.Post, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(postSelect+" WHERE p.id = ?"), id)
	return scanPost(row)
}

// ListPosts returns one page of posts, newest first.
func (s *PostService) ListPosts(ctx context.Context, actor *models.User, page, pageSize int) (models.PostPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	where := " WHERE p.draft = ?"
	args := []interface{}{false}
	if actor.IsAdmin() {
		where = ""
		args = nil
	}

	result := models.PostPage{Posts: []models.Post{}, Page: page, PageSize: pageSize}

	if err := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM posts p"+where), args...).Scan(&result.Total); err != nil {
		return models.PostPage{}, storeErr("count posts", err)
	}

	query := postSelect + where + " ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return models.PostPage{}, storeErr("list posts", err)
	}
	defer rows.Close()

	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return models.PostPage{}, err
		}
		result.Posts = append(result.Posts, post)
	}
	if err := rows.Err(); err != nil {
		return models.PostPage{}, storeErr("list posts", err)
	}
	return result, nil
}

// Latest returns the n newest posts for the home page.
func (s *PostService) Latest(ctx context.Context, actor *models.User, n int) ([]models.Post, error) {
	page, err := s.ListPosts(ctx, actor, 1, n)
	if err != nil {
		return nil, err
	}
	return page.Posts, nil
}

// AddComment stores a comment from an authenticated user on an existing post. The
// notification and live broadcast happen after the insert and cannot fail it.
func (s *PostService) AddComment(ctx context.Context, actor *models.User, postID int64, text string) (models.Comment, error) {
	if actor == nil {
		return models.Comment{}, ErrUnauthenticated
	}
	var v validator
	v.required("text", text)
	if err := v.err(); err != nil {
		return models.Comment{}, err
	}

	post, err := s.GetPost(ctx, actor, postID)
	if err != nil {
		return models.Comment{}, err
	}

	comment := models.Comment{
		Text:           strings.TrimSpace(text),
		PostID:         post.ID,
		AuthorID:       actor.ID,
		AuthorUsername: actor.Username,
		CreatedAt:      time.Now().UTC(),
	}
	err = s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO comments (text, post_id, author_id, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`),
		comment.Text, comment.PostID, comment.AuthorID, comment.CreatedAt,
	).Scan(&comment.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			// The post was deleted between the lookup and the insert.
			return models.Comment{}, fmt.Errorf("post %w", ErrNotFound)
		}
		return models.Comment{}, storeErr("create comment", err)
	}

	metrics.CommentsCreated.Inc()
	recordEvent(ctx, s.events, "comment.create", "info", fmt.Sprintf("%s commented on '%s'.", actor.Username, post.Title), post.ID)
	s.feed.PublishComment(comment)
	s.notifier.CommentCreated(ctx, post, comment)
	return comment, nil
}

// ListComments returns the comments of a post in insertion order.
func (s *PostService) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT c.id, c.text, c.post_id, c.author_id, u.username, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = ?
		ORDER BY c.id ASC`), postID)
	if err != nil {
		return nil, storeErr("list comments", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.PostID, &c.AuthorID, &c.AuthorUsername, &c.CreatedAt); err != nil {
			return nil, storeErr("scan comment", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list comments", err)
	}
	return comments, nil
}

func validatePost(input PostInput) error {
	var v validator
	v.required("title", input.Title)
	v.length("title", input.Title, 0, 250)
	v.required("subtitle", input.Subtitle)
	v.required("body", input.Body)
	v.url("imgUrl", input.ImgURL)
	return v.err()
}

func scanPost(row scanner) (models.Post, error) {
	var post models.Post
	var editedAt sql.NullTime
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Subtitle,
		&post.Body,
		&post.ImgURL,
		&post.AuthorID,
		&post.AuthorFirstName,
		&post.AuthorLastName,
		&post.Draft,
		&post.CreatedAt,
		&editedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, fmt.Errorf("post %w", ErrNotFound)
		}
		return models.Post{}, storeErr("load post", err)
	}
	if editedAt.Valid {
		t := editedAt.Time
		post.EditedAt = &t
	}
	return post, nil
}
