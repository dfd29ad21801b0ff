package connectiondao

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the WebSocket connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// CreateTable creates the connections table if it does not exist.
func (d *DAO) CreateTable(ctx context.Context) error {
	return d.table.CreateTableIfNotExists(ctx)
}

// Put stores a connection record.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	return d.table.Put(conn).RunWithContext(ctx)
}

// Get retrieves a connection record by ID.
func (d *DAO) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	return &conn, nil
}

// SetIdentity stores the identity assigned to an existing connection.
func (d *DAO) SetIdentity(ctx context.Context, connectionID, identity string) error {
	_, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 map[string]*dynamodb.AttributeValue{"pk": {S: aws.String(connectionID)}},
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String("SET #identity = :identity"),
		ExpressionAttributeNames: map[string]*string{
			"#identity": aws.String("identity"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":identity": {S: aws.String(identity)},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
		}
		return fmt.Errorf("failed to set identity on connection %v: %w", connectionID, err)
	}
	return nil
}

// Touch moves an existing connection's expiry to ttl.
func (d *DAO) Touch(ctx context.Context, connectionID string, ttl int64) error {
	_, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 map[string]*dynamodb.AttributeValue{"pk": {S: aws.String(connectionID)}},
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String("SET #ttl = :ttl"),
		ExpressionAttributeNames: map[string]*string{
			"#ttl": aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":ttl": {N: aws.String(strconv.FormatInt(ttl, 10))},
		},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
		}
		return fmt.Errorf("failed to touch connection %v: %w", connectionID, err)
	}
	return nil
}

// Delete removes a connection record by ID.
func (d *DAO) Delete(ctx context.Context, connectionID string) error {
	return d.table.Delete(connectionID).RunWithContext(ctx)
}

// DeleteExpired removes every connection whose TTL is at or before now and
// returns how many were removed.
func (d *DAO) DeleteExpired(ctx context.Context, now int64) (int, error) {
	var expired []Connection
	input := &dynamodb.ScanInput{
		TableName:                aws.String(d.tableName),
		FilterExpression:         aws.String("#ttl <= :now"),
		ExpressionAttributeNames: map[string]*string{"#ttl": aws.String("ttl")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": {N: aws.String(strconv.FormatInt(now, 10))},
		},
	}
	var decodeErr error
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		var items []Connection
		if decodeErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); decodeErr != nil {
			return false
		}
		expired = append(expired, items...)
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired connections: %w", err)
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("failed to decode expired connections: %w", decodeErr)
	}

	for i, conn := range expired {
		if err := d.Delete(ctx, conn.ConnectionID); err != nil {
			return i, fmt.Errorf("failed to delete expired connection %v: %w", conn.ConnectionID, err)
		}
	}
	return len(expired), nil
}
