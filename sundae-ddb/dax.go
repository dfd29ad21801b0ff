// Package sundaeddb provides DynamoDB and DAX client construction shared by
// the DynamoDB-backed DAOs.
package sundaeddb

import (
	"fmt"

	"github.com/aws/aws-dax-go/dax"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

type DAXWrapper struct {
	*dax.Dax
}

// Session builds an AWS session honoring the region and endpoint overrides.
func Session() (*session.Session, error) {
	config := aws.NewConfig()
	if DDBOpts.Region != "" {
		config = config.WithRegion(DDBOpts.Region)
	}
	return session.NewSession(config)
}

func DynamoDBAPI(s *session.Session) (dynamodbiface.DynamoDBAPI, error) {
	if DDBOpts.DAXCluster != "" {
		config := dax.DefaultConfig()
		config.HostPorts = []string{DDBOpts.DAXCluster}
		config.Region = aws.StringValue(s.Config.Region)
		if config.Region == "" {
			config.Region = "us-east-2"
		}
		daxClient, err := dax.New(config)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to dax cluster %v: %w", DDBOpts.DAXCluster, err)
		}
		return DAXWrapper{Dax: daxClient}, nil
	}
	if DDBOpts.Endpoint != "" {
		return dynamodb.New(s, aws.NewConfig().WithEndpoint(DDBOpts.Endpoint)), nil
	}
	return dynamodb.New(s), nil
}

// These methods aren't implemented by the DAX library, meaning we can't use it as dynamodbiface
// We don't really need them, so we just return an unimplemented error
func (DAXWrapper) DeleteResourcePolicy(*dynamodb.DeleteResourcePolicyInput) (*dynamodb.DeleteResourcePolicyOutput, error) {
	return nil, fmt.Errorf("unimplemented")
}
func (DAXWrapper) DeleteResourcePolicyWithContext(aws.Context, *dynamodb.DeleteResourcePolicyInput, ...request.Option) (*dynamodb.DeleteResourcePolicyOutput, error) {
	return nil, fmt.Errorf("unimplemented")
}
func (DAXWrapper) DeleteResourcePolicyRequest(*dynamodb.DeleteResourcePolicyInput) (*request.Request, *dynamodb.DeleteResourcePolicyOutput) {
	return nil, nil
}
func (DAXWrapper) GetResourcePolicy(*dynamodb.GetResourcePolicyInput) (*dynamodb.GetResourcePolicyOutput, error) {
	return nil, fmt.Errorf("unimplemented")
}
func (DAXWrapper) GetResourcePolicyWithContext(aws.Context, *dynamodb.GetResourcePolicyInput, ...request.Option) (*dynamodb.GetResourcePolicyOutput, error) {
	return nil, fmt.Errorf("unimplemented")
}
func (DAXWrapper) GetResourcePolicyRequest(*dynamodb.GetResourcePolicyInput) (*request.Request, *dynamodb.GetResourcePolicyOutput) {
	return nil, nil
}
func (DAXWrapper) PutResourcePolicy(*dynamodb.PutResourcePolicyInput) (*dynamodb.PutResourcePolicyOutput, error) {
	return nil, fmt.Errorf("unimplemented")
}
func (DAXWrapper) PutResourcePolicyWithContext(aws.Context, *dynamodb.PutResourcePolicyInput, ...request.Option) (*dynamodb.PutResourcePolicyOutput, error) {
	return nil, fmt.Errorf("unimplemented")
}
func (DAXWrapper) PutResourcePolicyRequest(*dynamodb.PutResourcePolicyInput) (*request.Request, *dynamodb.PutResourcePolicyOutput) {
	return nil, nil
}
