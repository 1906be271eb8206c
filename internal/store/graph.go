package store

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Graph wraps the Neo4j knowledge base. Read and write paths are split so
// the audit executor can be handed a read-only view.
type Graph struct {
	driver neo4j.DriverWithContext
}

func OpenGraph(ctx context.Context, uri, user, password string) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Graph{driver: driver}, nil
}

// ReadQuery runs a read-only Cypher statement and returns record maps.
func (g *Graph) ReadQuery(ctx context.Context, stmt string) ([]Row, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(records))
		for _, rec := range records {
			rows = append(rows, Row(rec.AsMap()))
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("cypher read failed: %w", err)
	}
	return result.([]Row), nil
}

// WriteQuery runs a mutating Cypher statement. Used by loading tools only;
// the audit executor never calls it.
func (g *Graph) WriteQuery(ctx context.Context, stmt string, params map[string]any) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, stmt, params)
	})
	if err != nil {
		return fmt.Errorf("cypher write failed: %w", err)
	}
	return nil
}

func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
