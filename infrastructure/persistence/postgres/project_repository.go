package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	pkgerrors "todoflow/pkg/errors"
)

// ProjectRepository implements ports.ProjectRepository on PostgreSQL.
type ProjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ ports.ProjectRepository = (*ProjectRepository)(nil)

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

func encodeGraph(p *entities.Project) ([]byte, []byte, error) {
	nodes, edges := p.Nodes, p.Edges
	if nodes == nil {
		nodes = []entities.TaskNode{}
	}
	if edges == nil {
		edges = []entities.TaskEdge{}
	}
	n, err := json.Marshal(nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode nodes: %w", err)
	}
	e, err := json.Marshal(edges)
	if err != nil {
		return nil, nil, fmt.Errorf("encode edges: %w", err)
	}
	return n, e, nil
}

func (r *ProjectRepository) Create(ctx context.Context, project *entities.Project) error {
	nodes, edges, err := encodeGraph(project)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, name, created_at, updated_at, version, nodes, edges)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		project.ID, project.OwnerID, project.Name, project.CreatedAt, project.UpdatedAt, project.Version, nodes, edges,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.NewConflictError(fmt.Sprintf("project %s already exists", project.ID))
		}
		return dbError("create project", err)
	}
	r.logger.Debug("Project created", zap.String("projectID", project.ID), zap.String("ownerID", project.OwnerID))
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, ownerID, projectID string) (*entities.Project, error) {
	var (
		p            entities.Project
		updatedAt    sql.NullTime
		nodes, edges []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, created_at, updated_at, version, nodes, edges
		FROM projects WHERE id = $1 AND owner_id = $2`,
		projectID, ownerID,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt, &updatedAt, &p.Version, &nodes, &edges)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	if err != nil {
		return nil, dbError("get project", err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		p.UpdatedAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if err := json.Unmarshal(nodes, &p.Nodes); err != nil {
		return nil, fmt.Errorf("decode nodes of project %s: %w", projectID, err)
	}
	if err := json.Unmarshal(edges, &p.Edges); err != nil {
		return nil, fmt.Errorf("decode edges of project %s: %w", projectID, err)
	}
	return &p, nil
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, created_at, updated_at, version
		FROM projects WHERE owner_id = $1
		ORDER BY created_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, dbError("list projects", err)
	}
	defer rows.Close()

	var out []*entities.Project
	for rows.Next() {
		var (
			p         entities.Project
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt, &updatedAt, &p.Version); err != nil {
			return nil, dbError("scan project", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		if updatedAt.Valid {
			t := updatedAt.Time.UTC()
			p.UpdatedAt = &t
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list projects", err)
	}
	return out, nil
}

func (r *ProjectRepository) Save(ctx context.Context, project *entities.Project, expectedVersion int64) error {
	nodes, edges, err := encodeGraph(project)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET name = $1, updated_at = $2, version = $3, nodes = $4, edges = $5
		WHERE id = $6 AND owner_id = $7 AND version = $8`,
		project.Name, project.UpdatedAt, project.Version, nodes, edges,
		project.ID, project.OwnerID, expectedVersion,
	)
	if err != nil {
		return dbError("save project", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("save project", err)
	}
	if n == 1 {
		return nil
	}

	var actual int64
	err = r.db.QueryRowContext(ctx,
		`SELECT version FROM projects WHERE id = $1 AND owner_id = $2`, project.ID, project.OwnerID,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerrors.NewNotFoundError("project")
	}
	if err != nil {
		return dbError("save project", err)
	}
	return pkgerrors.NewConflictError("project was modified concurrently").
		WithCode(pkgerrors.CodeVersionConflict).
		WithDetails(map[string]any{"projectId": project.ID, "expectedVersion": expectedVersion, "actualVersion": actual})
}

func (r *ProjectRepository) Delete(ctx context.Context, ownerID, projectID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND owner_id = $2`, projectID, ownerID)
	if err != nil {
		return dbError("delete project", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("delete project", err)
	}
	if n == 0 {
		return pkgerrors.NewNotFoundError("project")
	}
	r.logger.Debug("Project deleted", zap.String("projectID", projectID), zap.String("ownerID", ownerID))
	return nil
}
