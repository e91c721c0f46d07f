package models

import "time"

// Post is a blog entry owned by its author.
type Post struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Subtitle        string     `json:"subtitle"`
	Body            string     `json:"body"`
	ImgURL          string     `json:"imgUrl"`
	AuthorID        int64      `json:"authorId"`
	AuthorFirstName string     `json:"authorFirstName"`
	AuthorLastName  string     `json:"authorLastName"`
	Draft           bool       `json:"draft"`
	CreatedAt       time.Time  `json:"createdAt"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
}

// PostPage is one page of the post listing.
type PostPage struct {
	Posts    []Post `json:"posts"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Total    int    `json:"total"`
}

// Comment is a reply to a post.
type Comment struct {
	ID             int64     `json:"id"`
	Text           string    `json:"text"`
	PostID         int64     `json:"postId"`
	AuthorID       int64     `json:"authorId"`
	AuthorUsername string    `json:"authorUsername"`
	CreatedAt      time.Time `json:"createdAt"`
}
