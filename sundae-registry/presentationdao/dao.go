package presentationdao

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// sequenceKey holds the counter numbers are allocated from. Slugs never
// contain '#'.
const sequenceKey = "#sequence"

// DAO provides access to the DynamoDB presentations table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new presentations DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Entry{}),
		api:       api,
		tableName: tableName,
	}
}

// CreateTable creates the presentations table if it does not exist.
func (d *DAO) CreateTable(ctx context.Context) error {
	return d.table.CreateTableIfNotExists(ctx)
}

// Insert stores a new entry under slug. If slug is already registered the
// stored entry is left untouched and ErrAlreadyExists is returned.
func (d *DAO) Insert(ctx context.Context, title, slug string) (Entry, error) {
	var existing Entry
	err := d.table.Get(slug).ConsistentRead(true).ScanWithContext(ctx, &existing)
	if err == nil {
		return existing, fmt.Errorf("presentation %v: %w", slug, ErrAlreadyExists)
	}
	if !ddb.IsItemNotFoundError(err) {
		return Entry{}, fmt.Errorf("failed to get presentation %v: %w", slug, err)
	}

	number, err := d.next(ctx)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Slug:      slug,
		Number:    number,
		Title:     title,
		CreatedAt: time.Now().Unix(),
	}
	item, err := dynamodbattribute.MarshalMap(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal presentation %v: %w", slug, err)
	}

	_, err = d.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return Entry{}, fmt.Errorf("presentation %v: %w", slug, ErrAlreadyExists)
		}
		return Entry{}, fmt.Errorf("failed to put presentation %v: %w", slug, err)
	}
	return entry, nil
}

// List returns every entry ordered by number.
func (d *DAO) List(ctx context.Context) ([]Entry, error) {
	var (
		entries   []Entry
		decodeErr error
	)
	err := d.api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{TableName: aws.String(d.tableName)}, func(page *dynamodb.ScanOutput, _ bool) bool {
		var items []Entry
		if decodeErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); decodeErr != nil {
			return false
		}
		for _, item := range items {
			if item.Slug != sequenceKey {
				entries = append(entries, item)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan presentations: %w", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode presentations: %w", decodeErr)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Number < entries[j].Number
	})
	return entries, nil
}

func (d *DAO) next(ctx context.Context) (int64, error) {
	out, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              map[string]*dynamodb.AttributeValue{"pk": {S: aws.String(sequenceKey)}},
		UpdateExpression: aws.String("ADD #number :one"),
		ExpressionAttributeNames: map[string]*string{
			"#number": aws.String("number"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":one": {N: aws.String("1")},
		},
		ReturnValues: aws.String(dynamodb.ReturnValueUpdatedNew),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate presentation number: %w", err)
	}

	var seq struct {
		Number int64 `dynamodbav:"number"`
	}
	if err := dynamodbattribute.UnmarshalMap(out.Attributes, &seq); err != nil {
		return 0, fmt.Errorf("failed to decode presentation number: %w", err)
	}
	return seq.Number, nil
}
