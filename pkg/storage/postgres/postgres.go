// Package postgres provides a PostgreSQL-backed conversation store using
// pgx connection pools. Suited for multi-process deployments where the
// SQLite driver's single-file model doesn't fit.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/storage"
)

// Driver implements storage.Driver on a pgx connection pool.
type Driver struct {
	pool *pgxpool.Pool
}

// NewDriver connects to the database at dsn and migrates the schema.
func NewDriver(ctx context.Context, dsn string) (*Driver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	d := &Driver{pool: pool}
	if err := d.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

func (d *Driver) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		current_node_id TEXT
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		branch_name TEXT,
		merge_metadata_json JSONB
	);

	CREATE TABLE IF NOT EXISTS node_parents (
		node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		parent_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		PRIMARY KEY (node_id, ordinal)
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		original_name TEXT,
		media_type TEXT,
		size BIGINT
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_conversation ON nodes(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_node_parents_parent ON node_parents(parent_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_node ON attachments(node_id);
	`

	_, err := d.pool.Exec(ctx, schema)
	return err
}

// SaveConversation persists the whole graph in one transaction, replacing
// node rows wholesale.
func (d *Driver) SaveConversation(ctx context.Context, g *conversation.Graph) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, name, created_at, updated_at, is_active, current_node_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at,
			is_active = EXCLUDED.is_active,
			current_node_id = EXCLUDED.current_node_id`,
		g.ID, g.Name, g.CreatedAt, now, g.Active, g.CurrentID,
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM nodes WHERE conversation_id = $1`, g.ID); err != nil {
		return fmt.Errorf("clearing nodes: %w", err)
	}

	for _, n := range g.Nodes() {
		var metaJSON []byte
		if n.MergeMetadata != nil {
			metaJSON, err = json.Marshal(n.MergeMetadata)
			if err != nil {
				return fmt.Errorf("marshaling merge metadata for %s: %w", n.ID, err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO nodes (id, conversation_id, role, content, created_at, branch_name, merge_metadata_json)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
			n.ID, g.ID, string(n.Role), n.Content, n.CreatedAt, n.BranchName, metaJSON,
		)
		if err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}

		for ordinal, pid := range n.ParentIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO node_parents (node_id, parent_id, ordinal) VALUES ($1, $2, $3)`,
				n.ID, pid, ordinal,
			)
			if err != nil {
				return fmt.Errorf("inserting edge %s -> %s: %w", pid, n.ID, err)
			}
		}

		for _, att := range n.Attachments {
			_, err := tx.Exec(ctx, `
				INSERT INTO attachments (id, node_id, filename, original_name, media_type, size)
				VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`,
				att.ID, n.ID, att.Filename, att.OriginalName, att.MediaType, att.Size,
			)
			if err != nil {
				return fmt.Errorf("inserting attachment %s: %w", att.ID, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// LoadConversation reconstructs and validates the graph for id.
func (d *Driver) LoadConversation(ctx context.Context, id string) (*conversation.Graph, error) {
	var (
		convID    string
		name      string
		createdAt time.Time
		active    bool
		currentID *string
	)
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, created_at, is_active, current_node_id
		FROM conversations WHERE id = $1`, id,
	).Scan(&convID, &name, &createdAt, &active, &currentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	nodes, err := d.loadNodes(ctx, convID)
	if err != nil {
		return nil, err
	}

	current := ""
	if currentID != nil {
		current = *currentID
	}

	g, err := conversation.Rehydrate(convID, name, createdAt, active, current, nodes)
	if err != nil {
		return nil, storage.CorruptStoreError{ConversationID: convID, Err: err}
	}

	return g, nil
}

func (d *Driver) loadNodes(ctx context.Context, convID string) ([]*conversation.Node, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, role, content, created_at, branch_name, merge_metadata_json
		FROM nodes WHERE conversation_id = $1`, convID)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*conversation.Node)
	var nodes []*conversation.Node
	for rows.Next() {
		var (
			n          conversation.Node
			role       string
			branchName *string
			metaJSON   []byte
		)
		if err := rows.Scan(&n.ID, &role, &n.Content, &n.CreatedAt, &branchName, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n.Role = conversation.Role(role)
		if branchName != nil {
			n.BranchName = *branchName
		}
		if len(metaJSON) > 0 {
			var meta conversation.MergeMetadata
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return nil, storage.CorruptStoreError{
					ConversationID: convID,
					Err:            fmt.Errorf("unmarshaling merge metadata for %s: %w", n.ID, err),
				}
			}
			n.MergeMetadata = &meta
		}

		node := n
		byID[node.ID] = &node
		nodes = append(nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating node rows: %w", err)
	}

	if err := d.loadParents(ctx, convID, byID); err != nil {
		return nil, err
	}
	if err := d.loadAttachments(ctx, convID, byID); err != nil {
		return nil, err
	}

	return nodes, nil
}

func (d *Driver) loadParents(ctx context.Context, convID string, byID map[string]*conversation.Node) error {
	rows, err := d.pool.Query(ctx, `
		SELECT np.node_id, np.parent_id
		FROM node_parents np
		JOIN nodes n ON n.id = np.node_id
		WHERE n.conversation_id = $1
		ORDER BY np.node_id, np.ordinal`, convID)
	if err != nil {
		return fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID, parentID string
		if err := rows.Scan(&nodeID, &parentID); err != nil {
			return fmt.Errorf("scanning edge: %w", err)
		}
		if n, ok := byID[nodeID]; ok {
			n.ParentIDs = append(n.ParentIDs, parentID)
		}
	}

	return rows.Err()
}

func (d *Driver) loadAttachments(ctx context.Context, convID string, byID map[string]*conversation.Node) error {
	rows, err := d.pool.Query(ctx, `
		SELECT a.id, a.node_id, a.filename, a.original_name, a.media_type, a.size
		FROM attachments a
		JOIN nodes n ON n.id = a.node_id
		WHERE n.conversation_id = $1`, convID)
	if err != nil {
		return fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			att          conversation.Attachment
			nodeID       string
			originalName *string
			mediaType    *string
			size         *int64
		)
		if err := rows.Scan(&att.ID, &nodeID, &att.Filename, &originalName, &mediaType, &size); err != nil {
			return fmt.Errorf("scanning attachment: %w", err)
		}
		if originalName != nil {
			att.OriginalName = *originalName
		}
		if mediaType != nil {
			att.MediaType = *mediaType
		}
		if size != nil {
			att.Size = *size
		}
		if n, ok := byID[nodeID]; ok {
			n.Attachments = append(n.Attachments, att)
		}
	}

	return rows.Err()
}

// ListConversations returns summaries, most recently updated first.
func (d *Driver) ListConversations(ctx context.Context) ([]storage.Summary, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT c.id, c.name, c.created_at, c.updated_at, c.is_active, c.current_node_id,
			(SELECT COUNT(*) FROM nodes n WHERE n.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []storage.Summary
	for rows.Next() {
		var (
			s         storage.Summary
			currentID *string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt, &s.Active, &currentID, &s.NodeCount); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		if currentID != nil {
			s.CurrentNodeID = *currentID
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// DeleteConversation removes the conversation and everything under it.
func (d *Driver) DeleteConversation(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFoundError{ID: id}
	}

	return nil
}

// RenameConversation updates the display name.
func (d *Driver) RenameConversation(ctx context.Context, id, name string) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE conversations SET name = $1, updated_at = $2 WHERE id = $3`,
		name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFoundError{ID: id}
	}

	return nil
}

// SetActiveConversation marks id active and clears the flag everywhere else.
func (d *Driver) SetActiveConversation(ctx context.Context, id string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin activate transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE conversations SET is_active = FALSE WHERE is_active`); err != nil {
		return fmt.Errorf("clearing active flags: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE conversations SET is_active = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("setting active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFoundError{ID: id}
	}

	return tx.Commit(ctx)
}

// SearchNodes finds nodes whose content contains the query, newest first.
func (d *Driver) SearchNodes(ctx context.Context, query string, limit int) ([]storage.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.pool.Query(ctx, `
		SELECT n.conversation_id, c.name, n.id, n.role, n.content
		FROM nodes n
		JOIN conversations c ON c.id = n.conversation_id
		WHERE n.content ILIKE '%' || $1 || '%'
		ORDER BY n.created_at DESC
		LIMIT $2`,
		escapeLike(query), limit)
	if err != nil {
		return nil, fmt.Errorf("querying search: %w", err)
	}
	defer rows.Close()

	var hits []storage.SearchHit
	for rows.Next() {
		var (
			hit     storage.SearchHit
			role    string
			content string
		)
		if err := rows.Scan(&hit.ConversationID, &hit.ConversationName, &hit.NodeID, &role, &content); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hit.Role = conversation.Role(role)
		hit.Snippet = storage.Snippet(content, query, 60)
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

var _ storage.Driver = (*Driver)(nil)
