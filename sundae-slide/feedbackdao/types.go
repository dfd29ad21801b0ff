package feedbackdao

import "errors"

var ErrUnknownCategory = errors.New("unknown feedback category")

// Category is one of the closed set of reactions an audience member can send.
type Category string

const (
	Okay      Category = "okay"
	Good      Category = "good"
	Great     Category = "great"
	MindBlown Category = "mindBlown"
)

// Categories lists every recognized category in display order.
var Categories = []Category{Okay, Good, Great, MindBlown}

var columns = map[Category]string{
	Okay:      "feedback_okay",
	Good:      "feedback_good",
	Great:     "feedback_great",
	MindBlown: "feedback_mind_blown",
}

// ParseCategory maps a wire tag onto a Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	_, ok := columns[c]
	return c, ok
}

// Column returns the counter column (or DynamoDB attribute) holding this
// category's tally.
func (c Category) Column() (string, error) {
	column, ok := columns[c]
	if !ok {
		return "", ErrUnknownCategory
	}
	return column, nil
}

// Row holds the feedback tallies for one slide of one presentation.
type Row struct {
	SlideKey    string `json:"-"           dynamodbav:"slide_key"           ddb:"hash"`
	SlideNumber int64  `json:"slideNumber" dynamodbav:"slide_number"        ddb:"range"`
	SlideTitle  string `json:"slideTitle"  dynamodbav:"slide_title"`
	Okay        int64  `json:"okay"        dynamodbav:"feedback_okay"`
	Good        int64  `json:"good"        dynamodbav:"feedback_good"`
	Great       int64  `json:"great"       dynamodbav:"feedback_great"`
	MindBlown   int64  `json:"mindBlown"   dynamodbav:"feedback_mind_blown"`
}

// Count returns the tally for category.
func (r Row) Count(c Category) int64 {
	switch c {
	case Okay:
		return r.Okay
	case Good:
		return r.Good
	case Great:
		return r.Great
	case MindBlown:
		return r.MindBlown
	}
	return 0
}
