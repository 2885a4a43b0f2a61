package kgraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Engine: the embeddable entry point. An Engine owns its store, index
// manager, transaction manager, plan cache and metrics; there is no
// package-level mutable state, so independent engines coexist in one
// process.
// --------------------------------------------------------------------------

type Engine struct {
	opts        Options
	logger      *slog.Logger
	store       *GraphStore
	indexes     *IndexManager
	constraints *constraintRegistry
	txns        *TxManager
	cache       *planCache
	metrics     *Metrics
	gov         *governor
	slowLog     *slowQueryLog
	compact     *compactor
	db          *bolt.DB // nil without a data directory
	entities    EntityStore
	closed      atomic.Bool
}

// Open builds an engine from options. With a data directory, bbolt backs
// both the ordered indexes and the entity store; without one everything is
// in memory and ordered indexes are unavailable.
func Open(opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.logger().With("database", opts.Database)

	var db *bolt.DB
	var entities EntityStore
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
			return nil, storageErrorf("create data dir %s: %v", opts.DataDir, err)
		}
		var err error
		db, err = bolt.Open(filepath.Join(opts.DataDir, "kgraph.db"), 0o600, nil)
		if err != nil {
			return nil, storageErrorf("open data file: %v", err)
		}
		entities, err = NewBoltStoreOn(db)
		if err != nil {
			db.Close()
			return nil, err
		}
	} else {
		entities = NewMemoryEntityStore()
	}

	store := NewGraphStore()
	indexes := NewIndexManager(db)
	constraints := newConstraintRegistry()
	metrics := &Metrics{}
	e := &Engine{
		opts:        opts,
		logger:      logger,
		store:       store,
		indexes:     indexes,
		constraints: constraints,
		txns:        newTxManager(store, indexes, constraints, logger, metrics, opts.Database),
		cache:       newPlanCache(opts.PlanCacheSize),
		metrics:     metrics,
		gov:         newGovernor(&opts),
		slowLog:     newSlowQueryLog(opts.SlowQueryThreshold.std(), opts.SlowQueryLogSize),
		compact:     startCompactor(store, logger, opts.CompactionInterval.std()),
		db:          db,
		entities:    entities,
	}
	logger.Info("engine opened", "data_dir", opts.DataDir)
	return e, nil
}

// Close releases the engine. Queries and transactions in flight are not
// waited for.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.compact.halt()
	if err := e.entities.Close(); err != nil {
		return err
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			return storageErrorf("close data file: %v", err)
		}
	}
	e.logger.Info("engine closed")
	return nil
}

func (e *Engine) open() error {
	if e.closed.Load() {
		return storageErrorf("engine is closed")
	}
	return nil
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Store exposes the committed graph for direct reads.
func (e *Engine) Store() *GraphStore { return e.store }

// Indexes exposes the index registry for direct lookups.
func (e *Engine) Indexes() *IndexManager { return e.indexes }

// Bookmark captures the engine's committed position.
func (e *Engine) Bookmark() Bookmark { return e.txns.Bookmark() }

// Begin opens an explicit transaction attached to this engine.
func (e *Engine) Begin(ctx context.Context) (*Transaction, error) {
	if err := e.open(); err != nil {
		return nil, err
	}
	tx, err := e.txns.Begin(ctx)
	if err != nil {
		return nil, err
	}
	tx.engine = e
	return tx, nil
}

// ---------------------------------------------------------------------------
// Query path
// ---------------------------------------------------------------------------

// Compile parses and lowers a query, consulting the plan cache. The result
// is immutable and reusable across executions with different parameters.
func (e *Engine) Compile(text string) (*CompiledPlan, error) {
	if err := e.open(); err != nil {
		return nil, err
	}
	if plan := e.cache.get(text); plan != nil {
		e.metrics.cacheHit()
		return plan, nil
	}
	e.metrics.cacheMiss()
	ast, err := ParseQuery(text)
	if err != nil {
		return nil, err
	}
	plan, err := compileQuery(ast, text, e.indexes, e.opts.MaxTraversalDepth)
	if err != nil {
		return nil, err
	}
	e.cache.put(text, plan)
	return plan, nil
}

// Query compiles and executes in one step.
func (e *Engine) Query(ctx context.Context, text string, params map[string]any) (*Records, error) {
	plan, err := e.Compile(text)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, plan, params)
}

// Execute runs a compiled plan. Read-only plans stream lazily; writing
// plans run inside an implicit transaction that commits before results are
// returned, so a returned Records never holds uncommitted state.
func (e *Engine) Execute(ctx context.Context, plan *CompiledPlan, params map[string]any) (*Records, error) {
	if err := e.open(); err != nil {
		return nil, err
	}
	e.metrics.query()
	params = normalizeParams(params)
	start := time.Now()

	if !planHasWrites(plan.Root) {
		ctx, cancel := e.gov.limitCtx(ctx)
		env := &execEnv{
			ctx:     ctx,
			view:    e.store,
			indexes: e.indexes,
			params:  params,
			metrics: e.metrics,
		}
		cur, err := buildCursor(env, plan.Root)
		if err != nil {
			cancel()
			return nil, err
		}
		if err := cur.open(nil); err != nil {
			cur.close()
			cancel()
			return nil, err
		}
		return &Records{
			cols:    plan.Columns,
			cur:     cur,
			cancel:  cancel,
			maxRows: e.gov.maxRows,
			onFinish: func(rows int) {
				e.slowLog.observe(plan.Text, time.Since(start), rows)
			},
		}, nil
	}

	tx, err := e.Begin(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := e.runToCompletion(ctx, plan, params, tx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.slowLog.observe(plan.Text, time.Since(start), len(rows))
	return &Records{cols: plan.Columns, rows: rows}, nil
}

// queryInTx runs a query against a live transaction's overlay. Writes stay
// buffered; the caller owns the commit.
func (e *Engine) queryInTx(ctx context.Context, text string, params map[string]any, tx *Transaction) (*Records, error) {
	plan, err := e.Compile(text)
	if err != nil {
		return nil, err
	}
	e.metrics.query()
	rows, err := e.runToCompletion(ctx, plan, normalizeParams(params), tx)
	if err != nil {
		return nil, err
	}
	return &Records{cols: plan.Columns, rows: rows}, nil
}

func (e *Engine) runToCompletion(ctx context.Context, plan *CompiledPlan, params map[string]any, tx *Transaction) ([]*Record, error) {
	ctx, cancel := e.gov.limitCtx(ctx)
	defer cancel()
	env := &execEnv{
		ctx:     ctx,
		view:    tx.view(),
		indexes: e.indexes,
		params:  params,
		tx:      tx,
		metrics: e.metrics,
	}
	cur, err := buildCursor(env, plan.Root)
	if err != nil {
		return nil, err
	}
	defer cur.close()
	if err := cur.open(nil); err != nil {
		return nil, err
	}
	var rows []*Record
	for {
		rec, err := cur.next()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return rows, nil
		}
		rows = append(rows, rec)
		if err := e.gov.checkRows(len(rows)); err != nil {
			return nil, err
		}
	}
}

func planHasWrites(p *PlanNode) bool {
	if p == nil {
		return false
	}
	if p.Op == OpCreate {
		return true
	}
	return planHasWrites(p.Input) || planHasWrites(p.Right)
}

// normalizeParams widens caller-supplied parameter values onto the engine's
// value model so literals and parameters compare identically.
func normalizeParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Index administration: creation backfills from committed state and purges
// the plan cache, since cached access paths may now be stale.
// ---------------------------------------------------------------------------

func (e *Engine) CreateOrderedIndex(name, label string, properties ...string) error {
	if err := e.open(); err != nil {
		return err
	}
	if err := e.indexes.CreateOrderedIndex(name, label, properties...); err != nil {
		return err
	}
	return e.backfill(name)
}

func (e *Engine) CreateFullTextIndex(name, label, property string) error {
	if err := e.open(); err != nil {
		return err
	}
	if err := e.indexes.CreateFullTextIndex(name, label, property); err != nil {
		return err
	}
	return e.backfill(name)
}

func (e *Engine) CreateSpatialIndex(name, label, property string) error {
	if err := e.open(); err != nil {
		return err
	}
	if err := e.indexes.CreateSpatialIndex(name, label, property); err != nil {
		return err
	}
	return e.backfill(name)
}

func (e *Engine) CreateVectorIndex(name, label, property string, dimension int) error {
	if err := e.open(); err != nil {
		return err
	}
	if err := e.indexes.CreateVectorIndex(name, label, property, dimension); err != nil {
		return err
	}
	return e.backfill(name)
}

// CreateUniqueConstraint enforces value uniqueness for (label, property),
// failing when committed nodes already collide.
func (e *Engine) CreateUniqueConstraint(label, property string) error {
	if err := e.open(); err != nil {
		return err
	}
	return e.constraints.add(UniqueConstraint{Label: label, Property: property}, e.store)
}

// DropUniqueConstraint removes a unique constraint.
func (e *Engine) DropUniqueConstraint(label, property string) error {
	if err := e.open(); err != nil {
		return err
	}
	return e.constraints.drop(UniqueConstraint{Label: label, Property: property})
}

// UniqueConstraints lists the registered constraints.
func (e *Engine) UniqueConstraints() []UniqueConstraint {
	return e.constraints.list()
}

// SlowQueries returns the retained slow query entries, oldest first, and
// the total observed including evicted entries.
func (e *Engine) SlowQueries() ([]SlowQueryEntry, int) {
	return e.slowLog.snapshot()
}

func (e *Engine) DropIndex(name string) error {
	if err := e.open(); err != nil {
		return err
	}
	if err := e.indexes.Drop(name); err != nil {
		return err
	}
	e.cache.purge()
	return nil
}

func (e *Engine) backfill(name string) error {
	err := e.store.ForEachNode(func(n *Node) error {
		return e.indexes.insertNode(n)
	})
	if err != nil {
		return wrapUnexpected("backfill index "+name, err)
	}
	e.cache.purge()
	e.logger.Info("index created", "index", name)
	return nil
}

// ---------------------------------------------------------------------------
// Durability
// ---------------------------------------------------------------------------

// Flush walks the committed graph through the persistence collaborator.
func (e *Engine) Flush() error {
	if err := e.open(); err != nil {
		return err
	}
	err := e.store.ForEachNode(func(n *Node) error {
		_, err := e.entities.Put(n)
		return err
	})
	if err != nil {
		return err
	}
	err = e.store.ForEachRelationship(func(r *Relationship) error {
		_, err := e.entities.Put(r)
		return err
	})
	if err != nil {
		return err
	}
	nodes, rels := e.store.Counts()
	e.logger.Info("flushed", "nodes", nodes, "relationships", rels)
	return nil
}

// LoadFrom rebuilds the in-memory graph from an entity store, replacing
// nothing: entities load over the current arena, so call it on a fresh
// engine.
func (e *Engine) LoadFrom(src EntityStore) error {
	if err := e.open(); err != nil {
		return err
	}
	err := src.ForEach(func(ref EntityRef, entity any) error {
		switch ent := entity.(type) {
		case *Node:
			e.store.restoreNode(ent)
		case *Relationship:
			e.store.restoreRelationship(ent)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return e.store.ForEachNode(func(n *Node) error {
		return e.indexes.insertNode(n)
	})
}

// Load restores from the engine's own entity store.
func (e *Engine) Load() error { return e.LoadFrom(e.entities) }

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Records iterates query results: Next advances, Record returns the current
// row, Err reports the terminal error, Close releases the cursor chain.
// Restart by re-executing the plan; iteration is one-way.
type Records struct {
	cols []string

	cur      cursor // streaming mode
	rec      *Record
	err      error
	cancel   context.CancelFunc
	onFinish func(rows int)
	maxRows  int
	count    int

	rows []*Record // materialized mode
	pos  int

	done bool
}

// finish runs the end-of-stream hooks exactly once.
func (r *Records) finish() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.onFinish != nil {
		r.onFinish(r.count)
		r.onFinish = nil
	}
}

// Columns returns the result column names in projection order.
func (r *Records) Columns() []string { return r.cols }

// Next advances to the next row, returning false at end of stream or on
// error; Err distinguishes the two.
func (r *Records) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if r.cur != nil {
		rec, err := r.cur.next()
		if err != nil {
			r.err = err
			r.done = true
			r.cur.close()
			r.finish()
			return false
		}
		if rec == nil {
			r.done = true
			r.cur.close()
			r.finish()
			return false
		}
		r.rec = rec
		r.count++
		if r.maxRows > 0 && r.count > r.maxRows {
			r.err = fmt.Errorf("%w: %d rows, cap %d", ErrResultTooLarge, r.count, r.maxRows)
			r.done = true
			r.cur.close()
			r.finish()
			return false
		}
		return true
	}
	if r.pos >= len(r.rows) {
		r.done = true
		return false
	}
	r.rec = r.rows[r.pos]
	r.pos++
	return true
}

// Record returns the current row; valid after a true Next.
func (r *Records) Record() *Record { return r.rec }

// Err returns the error that terminated iteration, if any.
func (r *Records) Err() error { return r.err }

// Close releases the underlying cursors. Safe to call multiple times.
func (r *Records) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	defer r.finish()
	if r.cur != nil {
		return r.cur.close()
	}
	return nil
}

// Collect drains the iterator into a slice and closes it.
func (r *Records) Collect() ([]*Record, error) {
	var out []*Record
	for r.Next() {
		out = append(out, r.Record())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, r.Close()
}
