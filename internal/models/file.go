package models

// StoredFile is an uploaded file kept in the upload directory.
type StoredFile struct {
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}
