package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/towgrid/dispatch/core/graph"
)

// MapRepo reads the static road network tables.
type MapRepo struct {
	pool *pgxpool.Pool
}

// NewMapRepo creates a map repository on the pool.
func NewMapRepo(pool *pgxpool.Pool) *MapRepo {
	return &MapRepo{pool: pool}
}

// AreaIDByNodeID resolves a node to the area it belongs to.
func (r *MapRepo) AreaIDByNodeID(ctx context.Context, nodeID int64) (int64, error) {
	var area int64
	err := r.pool.QueryRow(ctx, `SELECT area_id FROM nodes WHERE id = $1`, nodeID).Scan(&area)
	if err != nil {
		return 0, wrap("map repository: area by node", err)
	}
	return area, nil
}

// LoadGraph builds the road graph from the nodes and edges tables.
// Each edge row is one undirected segment; the graph synthesizes the
// reverse adjacency itself.
func (r *MapRepo) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	g := graph.New()

	rows, err := r.pool.Query(ctx, `SELECT id, x, y FROM nodes`)
	if err != nil {
		return nil, wrap("map repository: load nodes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n graph.Node
		if err := rows.Scan(&n.ID, &n.X, &n.Y); err != nil {
			return nil, wrap("map repository: node scan", err)
		}
		g.AddNode(n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("map repository: node rows", err)
	}

	edgeRows, err := r.pool.Query(ctx, `SELECT node_a_id, node_b_id, weight FROM edges`)
	if err != nil {
		return nil, wrap("map repository: load edges", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var e graph.Edge
		if err := edgeRows.Scan(&e.From, &e.To, &e.Weight); err != nil {
			return nil, wrap("map repository: edge scan", err)
		}
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, wrap("map repository: edge rows", err)
	}

	return g, nil
}
