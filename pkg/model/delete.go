package model

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DeleteOptions selects the delete mode. The zero value is a soft, cascading delete.
type DeleteOptions struct {
	// Hard removes rows instead of flagging them deleted
	Hard bool

	// SkipAssociationRecords deletes only the row itself, with no cascade to
	// junction rows or children
	SkipAssociationRecords bool
}

type cascadeNode struct {
	entity *Entity
	id     int64
}

func (n cascadeNode) key() string {
	return n.entity.table + "#" + strconv.FormatInt(n.id, 10)
}

// Delete removes the record. Unless SkipAssociationRecords is set, junction
// rows of every registered associate are cleared and registered children are
// deleted first, level by level. Writes already committed stay in place when a
// later step fails. A NotFoundError reports that no row carries id; children
// that vanish while the cascade runs are skipped.
func (e *Entity) Delete(ctx context.Context, id int64, actingUserID string, opts DeleteOptions) error {
	if err := validateID("id", id); err != nil {
		return err
	}
	if err := validateActingUser(actingUserID); err != nil {
		return err
	}

	if opts.SkipAssociationRecords {
		return e.removeSelf(ctx, id, actingUserID, opts.Hard)
	}

	levels, err := e.collectCascade(ctx, id, actingUserID, opts.Hard)
	if err != nil {
		return err
	}

	// children go before their parents
	for i := len(levels) - 1; i >= 0; i-- {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)
		for _, n := range levels[i] {
			g.Go(func() error {
				err := n.entity.removeSelf(gctx, n.id, actingUserID, opts.Hard)
				if i > 0 && IsNotFound(err) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	e.logger.Debug("record deleted", "id", id, "hard", opts.Hard, "cascaded", countNodes(levels)-1)
	return nil
}

// collectCascade walks the child graph breadth first from (e, id), clearing
// each node's junction rows on the way. It returns the visited nodes grouped
// by depth.
func (e *Entity) collectCascade(ctx context.Context, id int64, actingUserID string, hard bool) ([][]cascadeNode, error) {
	root := cascadeNode{entity: e, id: id}
	visited := map[string]struct{}{root.key(): {}}
	level := []cascadeNode{root}

	var levels [][]cascadeNode
	for len(level) > 0 {
		levels = append(levels, level)

		var (
			mu   sync.Mutex
			next []cascadeNode
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)

		for _, n := range level {
			g.Go(func() error {
				if err := n.entity.clearAssociations(gctx, n.id, actingUserID, hard); err != nil {
					return err
				}
				for _, child := range n.entity.rels.Load().children {
					ids, err := child.FindIDsByParentReference(gctx, n.id, n.entity.table)
					if err != nil {
						return err
					}

					mu.Lock()
					for _, childID := range ids {
						cn := cascadeNode{entity: child, id: childID}
						if _, seen := visited[cn.key()]; seen {
							continue
						}
						visited[cn.key()] = struct{}{}
						next = append(next, cn)
					}
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		level = next
	}

	return levels, nil
}

// clearAssociations removes or flags every junction row holding id on this side
func (e *Entity) clearAssociations(ctx context.Context, id int64, actingUserID string, hard bool) error {
	for table, assoc := range e.rels.Load().associates {
		var err error
		if hard {
			_, err = e.store.Delete(ctx, assoc.JunctionTable, Criteria{assoc.ThisKey: id})
		} else {
			attrs := e.stamp(Record{ColumnDeleted: true}, actingUserID)
			_, err = e.store.Update(ctx, assoc.JunctionTable, Criteria{assoc.ThisKey: id, ColumnDeleted: false}, attrs)
		}
		if err != nil {
			return fmt.Errorf("failed to clear %s associations of %s %d: %w", table, e.table, id, err)
		}
	}
	return nil
}

func (e *Entity) removeSelf(ctx context.Context, id int64, actingUserID string, hard bool) error {
	if !hard {
		_, err := e.Update(ctx, id, Record{ColumnDeleted: true}, actingUserID)
		return err
	}

	n, err := e.store.Delete(ctx, e.table, Criteria{ColumnID: id})
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", e.table, id, err)
	}
	if n == 0 {
		return &NotFoundError{Table: e.table, ID: id}
	}
	return nil
}

func countNodes(levels [][]cascadeNode) int {
	n := 0
	for _, l := range levels {
		n += len(l)
	}
	return n
}
