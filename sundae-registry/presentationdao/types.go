package presentationdao

import "errors"

var ErrAlreadyExists = errors.New("presentation already exists")

// Entry is one registered presentation.
type Entry struct {
	Slug      string `json:"slug"   dynamodbav:"pk"          ddb:"hash"`
	Number    int64  `json:"number" dynamodbav:"number"`
	Title     string `json:"title"  dynamodbav:"title"`
	CreatedAt int64  `json:"-"      dynamodbav:"created_at"`
}
