package kgraph

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// --------------------------------------------------------------------------
// Partitioned execution. A Cluster runs one read query across N partition
// engines: compile once, fan out one goroutine per partition under a shared
// cancel, merge results as partitions complete, and deduplicate rows by
// fingerprint since an entity may live in more than one partition. The first
// partition error cancels the siblings and the partial results are
// discarded, never surfaced.
// --------------------------------------------------------------------------

// Cluster is a set of self-contained partition engines queried as one
// graph.
type Cluster struct {
	partitions []*Engine
	logger     *slog.Logger
	maxDepth   int
}

// NewCluster groups engines into a cluster. At least one partition is
// required; the first partition's traversal depth cap applies cluster-wide.
func NewCluster(partitions ...*Engine) (*Cluster, error) {
	if len(partitions) == 0 {
		return nil, storageErrorf("cluster needs at least one partition")
	}
	return &Cluster{
		partitions: partitions,
		logger:     partitions[0].logger.With("component", "cluster"),
		maxDepth:   partitions[0].opts.MaxTraversalDepth,
	}, nil
}

// Partitions returns the member engines.
func (c *Cluster) Partitions() []*Engine { return c.partitions }

// PartitionFor routes a node ID to its home partition.
func (c *Cluster) PartitionFor(id NodeID) *Engine {
	return c.partitions[uint64(id)%uint64(len(c.partitions))]
}

// Close closes every partition, returning the first error.
func (c *Cluster) Close() error {
	var first error
	for _, p := range c.partitions {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type partitionResult struct {
	rows []*Record
	err  error
}

// Query fans a read query out over every partition and merges the results.
// Writes must go to a single partition through its own engine.
func (c *Cluster) Query(ctx context.Context, text string, params map[string]any) (*Records, error) {
	ast, err := ParseQuery(text)
	if err != nil {
		return nil, err
	}
	// Compiled once without an index catalog: partitions may disagree on
	// index definitions, and residual predicates keep scans exact.
	plan, err := compileQuery(ast, text, nil, c.maxDepth)
	if err != nil {
		return nil, err
	}
	if planHasWrites(plan.Root) {
		return nil, queryErrorf("cluster queries are read-only; write through a partition engine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan partitionResult, len(c.partitions))
	var wg sync.WaitGroup
	for _, p := range c.partitions {
		wg.Add(1)
		go func(p *Engine) {
			defer wg.Done()
			recs, err := p.Execute(ctx, plan, params)
			if err != nil {
				results <- partitionResult{err: err}
				return
			}
			rows, err := recs.Collect()
			results <- partitionResult{rows: rows, err: err}
		}(p)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make(map[string]struct{})
	var merged []*Record
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue // cancelled sibling, discard
		}
		for _, row := range res.rows {
			key, err := fingerprintRecord(row, plan.Columns)
			if err != nil {
				firstErr = err
				cancel()
				break
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, row)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	if sortItems := findOrderBy(plan.Root); sortItems != nil {
		if err := resortMerged(merged, sortItems, normalizeParams(params)); err != nil {
			return nil, err
		}
	}
	c.logger.Debug("cluster query merged", "partitions", len(c.partitions), "rows", len(merged))
	return &Records{cols: plan.Columns, rows: merged}, nil
}

// findOrderBy locates the topmost ORDER BY of the plan, if any. Partition
// results arrive in completion order, so an explicit ordering must be
// re-established after the merge.
func findOrderBy(p *PlanNode) []OrderItem {
	for ; p != nil; p = p.Input {
		if p.Op == OpOrderBy {
			return p.SortItems
		}
	}
	return nil
}

func resortMerged(rows []*Record, items []OrderItem, params map[string]any) error {
	keys := make([][]any, len(rows))
	for i, row := range rows {
		keys[i] = make([]any, len(items))
		for j := range items {
			v, err := evalExpr(&items[j].Expr, row, params)
			if err != nil {
				return err
			}
			keys[i][j] = v
		}
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		for j := range items {
			cmp := compareSortKeys(keys[order[x]][j], keys[order[y]][j], items[j].Desc)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	sorted := make([]*Record, len(rows))
	for i, idx := range order {
		sorted[i] = rows[idx]
	}
	copy(rows, sorted)
	return nil
}
