// Package sqlite provides a SQLite-backed conversation store using
// database/sql with the mattn/go-sqlite3 driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/forkyhq/forky/pkg/conversation"
	"github.com/forkyhq/forky/pkg/storage"
)

// Driver implements storage.Driver on a single SQLite database. SQLite
// serializes writers internally; SaveConversation additionally wraps every
// multi-row write in one transaction so a crash never leaves a partial
// graph behind.
type Driver struct {
	db *sql.DB
}

// NewDriver opens (or creates) the database at dbPath and migrates the
// schema. dbPath may be ":memory:" for an ephemeral database. Foreign keys
// go into the DSN so every pooled connection enforces the cascades.
func NewDriver(dbPath string) (*Driver, error) {
	dsn := dbPath + "?_foreign_keys=on"
	if strings.Contains(dbPath, "?") {
		dsn = dbPath + "&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &Driver{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

func (d *Driver) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		current_node_id TEXT
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		branch_name TEXT,
		merge_metadata_json TEXT
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
		size INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_conversation ON nodes(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_node_parents_parent ON node_parents(parent_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_node ON attachments(node_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// SaveConversation persists the whole graph in one transaction: the
// conversation row is upserted and the node rows are replaced wholesale.
// Replacing is simpler than diffing and the graphs are small.
func (d *Driver) SaveConversation(ctx context.Context, g *conversation.Graph) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, name, created_at, updated_at, is_active, current_node_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at,
			is_active = excluded.is_active,
			current_node_id = excluded.current_node_id`,
		g.ID, g.Name, g.CreatedAt, now, g.Active, g.CurrentID,
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE conversation_id = ?`, g.ID); err != nil {
		return fmt.Errorf("clearing nodes: %w", err)
	}

	for _, n := range g.Nodes() {
		var metaJSON sql.NullString
		if n.MergeMetadata != nil {
			raw, err := json.Marshal(n.MergeMetadata)
			if err != nil {
				return fmt.Errorf("marshaling merge metadata for %s: %w", n.ID, err)
			}
			metaJSON = sql.NullString{String: string(raw), Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (id, conversation_id, role, content, created_at, branch_name, merge_metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, g.ID, string(n.Role), n.Content, n.CreatedAt, nullable(n.BranchName), metaJSON,
		)
		if err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}

		for ordinal, pid := range n.ParentIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO node_parents (node_id, parent_id, ordinal) VALUES (?, ?, ?)`,
				n.ID, pid, ordinal,
			)
			if err != nil {
				return fmt.Errorf("inserting edge %s -> %s: %w", pid, n.ID, err)
			}
		}

		for _, att := range n.Attachments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO attachments (id, node_id, filename, original_name, media_type, size)
				VALUES (?, ?, ?, ?, ?, ?)`,
				att.ID, n.ID, att.Filename, nullable(att.OriginalName), nullable(att.MediaType), att.Size,
			)
			if err != nil {
				return fmt.Errorf("inserting attachment %s: %w", att.ID, err)
			}
		}
	}

	return tx.Commit()
}

// LoadConversation reconstructs and validates the graph for id.
func (d *Driver) LoadConversation(ctx context.Context, id string) (*conversation.Graph, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, is_active, current_node_id
		FROM conversations WHERE id = ?`, id)

	var (
		convID    string
		name      string
		createdAt time.Time
		active    bool
		currentID sql.NullString
	)
	if err := row.Scan(&convID, &name, &createdAt, &active, &currentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	nodes, err := d.loadNodes(ctx, convID)
	if err != nil {
		return nil, err
	}

	g, err := conversation.Rehydrate(convID, name, createdAt, active, currentID.String, nodes)
	if err != nil {
		return nil, storage.CorruptStoreError{ConversationID: convID, Err: err}
	}

	return g, nil
}

func (d *Driver) loadNodes(ctx context.Context, convID string) ([]*conversation.Node, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, role, content, created_at, branch_name, merge_metadata_json
		FROM nodes WHERE conversation_id = ?`, convID)
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
			branchName sql.NullString
			metaJSON   sql.NullString
		)
		if err := rows.Scan(&n.ID, &role, &n.Content, &n.CreatedAt, &branchName, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n.Role = conversation.Role(role)
		n.BranchName = branchName.String
		if metaJSON.Valid {
			var meta conversation.MergeMetadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
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
	rows, err := d.db.QueryContext(ctx, `
		SELECT np.node_id, np.parent_id
		FROM node_parents np
		JOIN nodes n ON n.id = np.node_id
		WHERE n.conversation_id = ?
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
	rows, err := d.db.QueryContext(ctx, `
		SELECT a.id, a.node_id, a.filename, a.original_name, a.media_type, a.size
		FROM attachments a
		JOIN nodes n ON n.id = a.node_id
		WHERE n.conversation_id = ?`, convID)
	if err != nil {
		return fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			att          conversation.Attachment
			nodeID       string
			originalName sql.NullString
			mediaType    sql.NullString
			size         sql.NullInt64
		)
		if err := rows.Scan(&att.ID, &nodeID, &att.Filename, &originalName, &mediaType, &size); err != nil {
			return fmt.Errorf("scanning attachment: %w", err)
		}
		att.OriginalName = originalName.String
		att.MediaType = mediaType.String
		att.Size = size.Int64
		if n, ok := byID[nodeID]; ok {
			n.Attachments = append(n.Attachments, att)
		}
	}

	return rows.Err()
}

// ListConversations returns summaries, most recently updated first.
func (d *Driver) ListConversations(ctx context.Context) ([]storage.Summary, error) {
	rows, err := d.db.QueryContext(ctx, `
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
			currentID sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt, &s.Active, &currentID, &s.NodeCount); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		s.CurrentNodeID = currentID.String
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// DeleteConversation removes the conversation and, via cascade, its nodes,
// edges and attachments.
func (d *Driver) DeleteConversation(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return storage.NotFoundError{ID: id}
	}

	return nil
}

// RenameConversation updates the display name.
func (d *Driver) RenameConversation(ctx context.Context, id, name string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE conversations SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rename result: %w", err)
	}
	if affected == 0 {
		return storage.NotFoundError{ID: id}
	}

	return nil
}

// SetActiveConversation marks id active and clears the flag on every other
// conversation, in one transaction.
func (d *Driver) SetActiveConversation(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET is_active = 0 WHERE is_active = 1`); err != nil {
		return fmt.Errorf("clearing active flags: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET is_active = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("setting active flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking activate result: %w", err)
	}
	if affected == 0 {
		return storage.NotFoundError{ID: id}
	}

	return tx.Commit()
}

// SearchNodes finds nodes whose content contains the query, newest first.
func (d *Driver) SearchNodes(ctx context.Context, query string, limit int) ([]storage.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT n.conversation_id, c.name, n.id, n.role, n.content
		FROM nodes n
		JOIN conversations c ON c.id = n.conversation_id
		WHERE n.content LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY n.created_at DESC
		LIMIT ?`,
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

// Close closes the database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
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

// Ensure Driver implements storage.Driver
var _ storage.Driver = (*Driver)(nil)
