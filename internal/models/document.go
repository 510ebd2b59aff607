package models

import "time"

// Bill is an uploaded utility bill attached to a lead in Firestore.
// It records where the object lives in Cloud Storage and what was uploaded.
type Bill struct {
	ID         string    `firestore:"id" json:"id"`
	FileName   string    `firestore:"fileName" json:"fileName"`
	FileURL    string    `firestore:"fileUrl" json:"fileUrl"`
	FilePath   string    `firestore:"filePath" json:"filePath"`
	FileSize   int64     `firestore:"fileSize" json:"fileSize"`
	MimeType   string    `firestore:"mimeType" json:"mimeType"`
	PageCount  int       `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	UploadedAt time.Time `firestore:"uploadedAt" json:"uploadedAt"`
}
