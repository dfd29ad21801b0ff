package sundaeddb

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// LocalAPI returns a client for DynamoDB Local using throwaway credentials.
func LocalAPI(endpoint string) dynamodbiface.DynamoDBAPI {
	s := session.Must(session.NewSession(aws.NewConfig().
		WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
		WithEndpoint(endpoint).
		WithRegion("us-west-2")))
	return dynamodb.New(s)
}
