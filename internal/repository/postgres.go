package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore is a PostgreSQL implementation of Store backed by a
// pgxpool. Graph structures and instance state are stored as JSONB.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the workflow tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_definitions (
			id            UUID PRIMARY KEY,
			workflow_id   UUID NOT NULL,
			version       INT NOT NULL,
			is_latest     BOOLEAN NOT NULL,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			category      TEXT NOT NULL DEFAULT '',
			icon          TEXT NOT NULL DEFAULT '',
			input_schema  JSONB NOT NULL DEFAULT '{}',
			output_schema JSONB NOT NULL DEFAULT '{}',
			entry_node    TEXT NOT NULL,
			nodes         JSONB NOT NULL,
			edges         JSONB NOT NULL,
			created_by    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL,
			UNIQUE (workflow_id, version)
		);
		CREATE TABLE IF NOT EXISTS workflow_instances (
			id              UUID PRIMARY KEY,
			workflow_id     UUID NOT NULL,
			status          TEXT NOT NULL,
			current_node_id TEXT NOT NULL DEFAULT '',
			step_data       JSONB NOT NULL DEFAULT '{}',
			node_states     JSONB NOT NULL DEFAULT '{}',
			conversation_id BIGINT,
			version         INT NOT NULL,
			error           TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			completed_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_instances_status
			ON workflow_instances (status);
	`)
	return err
}

// CreateDefinition persists a new definition version inside a transaction
// so the version bump and latest-flag flip are atomic.
func (s *PostgresStore) CreateDefinition(ctx context.Context, def *models.GraphDefinition) error {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if def.WorkflowID == "" {
		def.WorkflowID = uuid.New().String()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create definition: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM workflow_definitions WHERE id = $1)",
		def.ID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return models.ErrDefinitionExists
	}

	var maxVersion int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM workflow_definitions WHERE workflow_id = $1",
		def.WorkflowID,
	).Scan(&maxVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"UPDATE workflow_definitions SET is_latest = FALSE WHERE workflow_id = $1",
		def.WorkflowID,
	); err != nil {
		return err
	}

	def.Version = maxVersion + 1
	def.IsLatest = true
	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	inputSchema, err := json.Marshal(def.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal input schema: %w", err)
	}
	outputSchema, err := json.Marshal(def.OutputSchema)
	if err != nil {
		return fmt.Errorf("marshal output schema: %w", err)
	}
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := json.Marshal(def.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO workflow_definitions
			(id, workflow_id, version, is_latest, name, description, category, icon,
			 input_schema, output_schema, entry_node, nodes, edges, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		def.ID, def.WorkflowID, def.Version, def.IsLatest, def.Name, def.Description,
		def.Category, def.Icon, inputSchema, outputSchema, def.EntryNode, nodes, edges,
		def.CreatedBy, def.CreatedAt, def.UpdatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const definitionColumns = `id, workflow_id, version, is_latest, name, description, category, icon,
	input_schema, output_schema, entry_node, nodes, edges, created_by, created_at, updated_at`

// GetDefinition retrieves a definition version by id.
func (s *PostgresStore) GetDefinition(ctx context.Context, id string) (*models.GraphDefinition, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+definitionColumns+" FROM workflow_definitions WHERE id = $1", id)
	return scanDefinition(row)
}

// GetLatestDefinition retrieves the latest version for a workflow concept.
func (s *PostgresStore) GetLatestDefinition(ctx context.Context, workflowID string) (*models.GraphDefinition, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+definitionColumns+" FROM workflow_definitions WHERE workflow_id = $1 AND is_latest", workflowID)
	return scanDefinition(row)
}

// ListDefinitions returns all definition versions ordered by name and
// version.
func (s *PostgresStore) ListDefinitions(ctx context.Context) ([]*models.GraphDefinition, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+definitionColumns+" FROM workflow_definitions ORDER BY name, version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*models.GraphDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func scanDefinition(row pgx.Row) (*models.GraphDefinition, error) {
	var def models.GraphDefinition
	var inputSchema, outputSchema, nodes, edges []byte

	err := row.Scan(&def.ID, &def.WorkflowID, &def.Version, &def.IsLatest, &def.Name,
		&def.Description, &def.Category, &def.Icon, &inputSchema, &outputSchema,
		&def.EntryNode, &nodes, &edges, &def.CreatedBy, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDefinitionNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(inputSchema, &def.InputSchema); err != nil {
		return nil, fmt.Errorf("unmarshal input schema: %w", err)
	}
	if err := json.Unmarshal(outputSchema, &def.OutputSchema); err != nil {
		return nil, fmt.Errorf("unmarshal output schema: %w", err)
	}
	if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &def.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return &def, nil
}

// CreateInstance persists a new instance.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	stepData, nodeStates, err := marshalInstanceState(inst)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO workflow_instances
			(id, workflow_id, status, current_node_id, step_data, node_states,
			 conversation_id, version, error, created_at, updated_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		inst.ID, inst.WorkflowID, inst.Status, inst.CurrentNodeID, stepData, nodeStates,
		inst.ConversationID, inst.Version, inst.Error, inst.CreatedAt, inst.UpdatedAt, inst.CompletedAt,
	)
	return err
}

const instanceColumns = `id, workflow_id, status, current_node_id, step_data, node_states,
	conversation_id, version, error, created_at, updated_at, completed_at`

// GetInstance retrieves a point-in-time copy of an instance.
func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+instanceColumns+" FROM workflow_instances WHERE id = $1", id)
	return scanInstance(row)
}

// SaveInstance atomically replaces an instance. The UPDATE is guarded by
// the caller's Version: zero rows affected on an existing instance means
// another writer got there first, which surfaces as models.ErrConflict.
func (s *PostgresStore) SaveInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	stepData, nodeStates, err := marshalInstanceState(inst)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE workflow_instances
		SET status = $1, current_node_id = $2, step_data = $3, node_states = $4,
		    version = version + 1, error = $5, updated_at = $6, completed_at = $7
		WHERE id = $8 AND version = $9`,
		inst.Status, inst.CurrentNodeID, stepData, nodeStates,
		inst.Error, now, inst.CompletedAt, inst.ID, inst.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)", inst.ID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrInstanceNotFound
		}
		return models.ErrConflict
	}

	inst.Version++
	inst.UpdatedAt = now
	return nil
}

// ListInstances returns instances matching the given options, newest
// first.
func (s *PostgresStore) ListInstances(ctx context.Context, opts InstanceListOpts) ([]*models.WorkflowInstance, error) {
	query := "SELECT " + instanceColumns + " FROM workflow_instances WHERE TRUE"
	var args []any
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*models.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(row pgx.Row) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	var stepData, nodeStates []byte

	err := row.Scan(&inst.ID, &inst.WorkflowID, &inst.Status, &inst.CurrentNodeID,
		&stepData, &nodeStates, &inst.ConversationID, &inst.Version, &inst.Error,
		&inst.CreatedAt, &inst.UpdatedAt, &inst.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrInstanceNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(stepData, &inst.StepData); err != nil {
		return nil, fmt.Errorf("unmarshal step data: %w", err)
	}
	if err := json.Unmarshal(nodeStates, &inst.NodeStates); err != nil {
		return nil, fmt.Errorf("unmarshal node states: %w", err)
	}
	return &inst, nil
}

func marshalInstanceState(inst *models.WorkflowInstance) (stepData, nodeStates []byte, err error) {
	stepData, err = json.Marshal(inst.StepData)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal step data: %w", err)
	}
	nodeStates, err = json.Marshal(inst.NodeStates)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal node states: %w", err)
	}
	return stepData, nodeStates, nil
}
