package feedbackdao

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the DynamoDB feedback table. Rows are keyed by
// slide key (hash) and slide number (range).
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string

	mu      sync.Mutex
	ensured bool
}

// New creates a new feedback DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Row{}),
		api:       api,
		tableName: tableName,
	}
}

// EnsureTable creates the feedback table if it does not exist yet. Only the
// first successful call reaches DynamoDB.
func (d *DAO) EnsureTable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ensured {
		return nil
	}
	if err := d.table.CreateTableIfNotExists(ctx); err != nil {
		return fmt.Errorf("failed to ensure feedback table %v: %w", d.tableName, err)
	}
	d.ensured = true
	return nil
}

// RecordFeedback increments the category counter for a slide, creating the
// row with slideTitle if it does not exist. An existing title is never
// overwritten. The whole operation is a single UpdateItem.
func (d *DAO) RecordFeedback(ctx context.Context, slideKey string, slideNumber int64, slideTitle string, category Category) error {
	column, err := category.Column()
	if err != nil {
		return fmt.Errorf("failed to record feedback for slide %v/%v: %w", slideKey, slideNumber, err)
	}

	_, err = d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"slide_key":    {S: aws.String(slideKey)},
			"slide_number": {N: aws.String(strconv.FormatInt(slideNumber, 10))},
		},
		UpdateExpression: aws.String("SET #title = if_not_exists(#title, :title) ADD #counter :one"),
		ExpressionAttributeNames: map[string]*string{
			"#title":   aws.String("slide_title"),
			"#counter": aws.String(column),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":title": {S: aws.String(slideTitle)},
			":one":   {N: aws.String("1")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to record %v feedback for slide %v/%v: %w", category, slideKey, slideNumber, err)
	}
	return nil
}

// ListFeedback returns every row for slideKey ordered by slide number.
func (d *DAO) ListFeedback(ctx context.Context, slideKey string) ([]Row, error) {
	var rows []Row
	err := d.table.Query("#SlideKey = ?", slideKey).
		FindAllWithContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback for slide %v: %w", slideKey, err)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SlideNumber < rows[j].SlideNumber
	})
	return rows, nil
}
