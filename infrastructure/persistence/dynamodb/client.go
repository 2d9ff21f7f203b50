// Package dynamodb stores users and projects in a single DynamoDB table.
//
// Key layout:
//
//	PK = USER#<uid>   SK = PROFILE           the user record
//	PK = USER#<uid>   SK = PROJECT#<id>      one project with its graph
//
// A project item carries its nodes and edges as lists, so a project is read
// and written as one item and the Version attribute guards it.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"

	pkgerrors "todoflow/pkg/errors"
)

const (
	userPrefix    = "USER#"
	projectPrefix = "PROJECT#"
	profileSK     = "PROFILE"

	entityProject = "PROJECT"
	entityUser    = "USER"
)

// API is the subset of the DynamoDB client the repositories use.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// NewClient builds a client from the default AWS credential chain. A
// non-empty endpoint points it at DynamoDB Local or LocalStack.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewClientFromConfig(cfg, endpoint), nil
}

// NewClientFromConfig builds a client from an already loaded AWS config.
func NewClientFromConfig(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func userPK(uid string) string { return userPrefix + uid }
func projectSK(projectID string) string { return projectPrefix + projectID }

func isConditionFailed(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

// mapError turns SDK failures into AppErrors. Condition failures are
// handled by the caller since their meaning depends on the operation.
func mapError(operation string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException":
			return pkgerrors.NewUnavailableError("dynamodb").WithCause(err).
				WithDetails(map[string]any{"operation": operation})
		case "ResourceNotFoundException":
			return pkgerrors.NewDatabaseError(operation, err).WithDetails(map[string]any{"reason": "table not found"})
		}
	}
	return pkgerrors.NewDatabaseError(operation, err)
}
