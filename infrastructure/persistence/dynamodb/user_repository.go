package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	pkgerrors "todoflow/pkg/errors"
)

type userItem struct {
	PK          string     `dynamodbav:"PK"`
	SK          string     `dynamodbav:"SK"`
	EntityType  string     `dynamodbav:"EntityType"`
	UID         string     `dynamodbav:"UID"`
	Email       string     `dynamodbav:"Email"`
	DisplayName string     `dynamodbav:"DisplayName"`
	PhotoURL    *string    `dynamodbav:"PhotoURL,omitempty"`
	CreatedAt   time.Time  `dynamodbav:"CreatedAt"`
	LastLoginAt *time.Time `dynamodbav:"LastLoginAt,omitempty"`
}

// UserRepository implements ports.UserRepository on DynamoDB.
type UserRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

var _ ports.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new user repository
func NewUserRepository(client API, tableName string, logger *zap.Logger) *UserRepository {
	return &UserRepository{client: client, tableName: tableName, logger: logger}
}

func (r *UserRepository) Get(ctx context.Context, uid string) (*entities.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(uid)},
			"SK": &types.AttributeValueMemberS{Value: profileSK},
		},
	})
	if err != nil {
		return nil, mapError("get user", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("user")
	}
	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to parse user item: %w", err)
	}
	return &entities.User{
		UID:         item.UID,
		Email:       item.Email,
		DisplayName: item.DisplayName,
		PhotoURL:    item.PhotoURL,
		CreatedAt:   item.CreatedAt,
		LastLoginAt: item.LastLoginAt,
	}, nil
}

func (r *UserRepository) Save(ctx context.Context, user *entities.User) error {
	item, err := attributevalue.MarshalMap(userItem{
		PK:          userPK(user.UID),
		SK:          profileSK,
		EntityType:  entityUser,
		UID:         user.UID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return mapError("save user", err)
	}
	r.logger.Debug("User saved", zap.String("uid", user.UID))
	return nil
}
