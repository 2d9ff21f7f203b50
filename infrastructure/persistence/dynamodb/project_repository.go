package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	pkgerrors "todoflow/pkg/errors"
)

// projectItem is the stored shape of a project.
type projectItem struct {
	PK         string              `dynamodbav:"PK"`
	SK         string              `dynamodbav:"SK"`
	EntityType string              `dynamodbav:"EntityType"`
	ProjectID  string              `dynamodbav:"ProjectID"`
	OwnerID    string              `dynamodbav:"OwnerID"`
	Name       string              `dynamodbav:"Name"`
	CreatedAt  time.Time           `dynamodbav:"CreatedAt"`
	UpdatedAt  *time.Time          `dynamodbav:"UpdatedAt,omitempty"`
	Version    int64               `dynamodbav:"Version"`
	Nodes      []entities.TaskNode `dynamodbav:"Nodes"`
	Edges      []entities.TaskEdge `dynamodbav:"Edges"`
}

func toProjectItem(p *entities.Project) projectItem {
	nodes, edges := p.Nodes, p.Edges
	if nodes == nil {
		nodes = []entities.TaskNode{}
	}
	if edges == nil {
		edges = []entities.TaskEdge{}
	}
	return projectItem{
		PK:         userPK(p.OwnerID),
		SK:         projectSK(p.ID),
		EntityType: entityProject,
		ProjectID:  p.ID,
		OwnerID:    p.OwnerID,
		Name:       p.Name,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		Version:    p.Version,
		Nodes:      nodes,
		Edges:      edges,
	}
}

func (i projectItem) project() *entities.Project {
	return &entities.Project{
		ID:        i.ProjectID,
		OwnerID:   i.OwnerID,
		Name:      i.Name,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
		Version:   i.Version,
		Nodes:     i.Nodes,
		Edges:     i.Edges,
	}
}

// ProjectRepository implements ports.ProjectRepository on DynamoDB.
type ProjectRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

var _ ports.ProjectRepository = (*ProjectRepository)(nil)

// NewProjectRepository creates a new project repository
func NewProjectRepository(client API, tableName string, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{client: client, tableName: tableName, logger: logger}
}

func (r *ProjectRepository) key(ownerID, projectID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(ownerID)},
		"SK": &types.AttributeValueMemberS{Value: projectSK(projectID)},
	}
}

func (r *ProjectRepository) Create(ctx context.Context, project *entities.Project) error {
	cond := expression.Name("PK").AttributeNotExists()
	if err := r.put(ctx, project, cond, "create project"); err != nil {
		if isConditionFailed(err) {
			return pkgerrors.NewConflictError(fmt.Sprintf("project %s already exists", project.ID))
		}
		return err
	}
	r.logger.Debug("Project created", zap.String("projectID", project.ID), zap.String("ownerID", project.OwnerID))
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, ownerID, projectID string) (*entities.Project, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(ownerID, projectID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError("get project", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("project")
	}

	var item projectItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to parse project item: %w", err)
	}
	p := item.project()
	if p.Nodes == nil {
		p.Nodes = []entities.TaskNode{}
	}
	if p.Edges == nil {
		p.Edges = []entities.TaskEdge{}
	}
	return p, nil
}

// ListByOwner reads summaries only; the graph attributes are not fetched.
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.Project, error) {
	keyCond := expression.KeyAnd(
		expression.Key("PK").Equal(expression.Value(userPK(ownerID))),
		expression.Key("SK").BeginsWith(projectPrefix),
	)
	proj := expression.NamesList(
		expression.Name("ProjectID"),
		expression.Name("OwnerID"),
		expression.Name("Name"),
		expression.Name("CreatedAt"),
		expression.Name("UpdatedAt"),
		expression.Name("Version"),
	)
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var projects []*entities.Project
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("list projects", err)
		}
		for _, raw := range page.Items {
			var item projectItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to parse project item", zap.Error(err))
				continue
			}
			projects = append(projects, item.project())
		}
	}

	sort.Slice(projects, func(i, j int) bool {
		if projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].ID < projects[j].ID
		}
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (r *ProjectRepository) Save(ctx context.Context, project *entities.Project, expectedVersion int64) error {
	cond := expression.Name("Version").Equal(expression.Value(expectedVersion))
	err := r.put(ctx, project, cond, "save project")
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return err
	}
	if ccf.Item == nil {
		return pkgerrors.NewNotFoundError("project")
	}
	actual := int64(-1)
	if v, ok := ccf.Item["Version"].(*types.AttributeValueMemberN); ok {
		actual, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	return pkgerrors.NewConflictError("project was modified concurrently").
		WithCode(pkgerrors.CodeVersionConflict).
		WithDetails(map[string]any{"projectId": project.ID, "expectedVersion": expectedVersion, "actualVersion": actual})
}

func (r *ProjectRepository) Delete(ctx context.Context, ownerID, projectID string) error {
	expr, err := expression.NewBuilder().WithCondition(expression.Name("PK").AttributeExists()).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(ownerID, projectID),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return pkgerrors.NewNotFoundError("project")
		}
		return mapError("delete project", err)
	}
	r.logger.Debug("Project deleted", zap.String("projectID", projectID), zap.String("ownerID", ownerID))
	return nil
}

// put writes the project under cond. Condition failures are returned raw
// so callers can interpret them.
func (r *ProjectRepository) put(ctx context.Context, project *entities.Project, cond expression.ConditionBuilder, op string) error {
	item, err := attributevalue.MarshalMap(toProjectItem(project))
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(r.tableName),
		Item:                                item,
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if isConditionFailed(err) {
			return err
		}
		return mapError(op, err)
	}
	return nil
}
