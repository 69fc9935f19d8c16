package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/towgrid/dispatch/config"
	"github.com/towgrid/dispatch/core/graph"
	"github.com/towgrid/dispatch/infra/repository"
)

var routeCmd = &cobra.Command{
	Use:   "route <from-node> <to-node>",
	Short: "Print the shortest road distance between two nodes",
	Args:  cobra.ExactArgs(2),
	RunE:  runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	from, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid from node: %w", err)
	}
	to, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid to node: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	defer pool.Close()

	g, err := repository.NewMapRepo(pool).LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("load road graph: %w", err)
	}

	dist := g.ShortestDistance(from, to)
	if dist == graph.Unreachable {
		fmt.Printf("no path from %d to %d\n", from, to)
		return nil
	}
	fmt.Printf("%d\n", dist)
	return nil
}
