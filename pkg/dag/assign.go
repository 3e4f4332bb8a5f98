package dag

import (
	"context"

	"github.com/cuemby/burrow/pkg/metrics"
)

// Parents enumerates a vertex's parents. The implementation may be backed
// by a remote service and is allowed to fail.
type Parents interface {
	ParentNames(ctx context.Context, v Vertex) ([]Vertex, error)
}

// ParentsFunc adapts a function to the Parents interface
type ParentsFunc func(ctx context.Context, v Vertex) ([]Vertex, error)

// ParentNames implements Parents
func (f ParentsFunc) ParentNames(ctx context.Context, v Vertex) ([]Vertex, error) {
	return f(ctx, v)
}

type visitOrder int

const (
	// Visit the first parent first: optimal for incremental builds where
	// pushrebase keeps appending to the first-parent mainline.
	orderFirstFirst visitOrder = iota
	// Visit the first parent last: makes the first-parent chain
	// contiguous with the child, optimal when building from scratch.
	orderFirstLast
)

type todoKind int

const (
	// Fetch parents, decide recursion order, finally assign self
	todoVisit todoKind = iota
	// Parents are visited; pop their IDs and choose an ID for this vertex
	todoAssign
	// Known ID, contributes to the parent-ID stack
	todoAssignedID
)

// todoItem is one heap-stack frame of the post-order DFS. The stack lives
// on the heap so deep histories cannot overflow the native stack.
type todoItem struct {
	kind       todoKind
	head       Vertex
	knownID    ID
	hasKnownID bool
	parentLen  int
	order      visitOrder
	id         ID
}

// AssignHead assigns an ID to head and to every ancestor that does not
// have one yet, in the given group. The covered set is extended with every
// ID this call allocates or re-covers; the reserved set is never allocated
// from. The returned segments describe the new (parents -> ID) edges to
// append to the segment DAG.
//
// Existing assignments in a group <= the requested one are reused; an
// assignment that exists only in a greater group is redone in the
// requested group. IdMap entries that are not covered yet (left behind by
// a crashed co-writer) are re-covered by visiting their parents again.
//
// Concurrent AssignHead calls require an external lock on the IdMap;
// without one, ID collisions are possible.
func AssignHead(
	ctx context.Context,
	store AssignStore,
	head Vertex,
	parents Parents,
	group Group,
	covered *IdSet,
	reserved *IdSet,
) (*PreparedFlatSegments, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AssignHeadDuration)

	outcome := NewPreparedFlatSegments()
	var parentIDs []ID

	rootOrder := orderFirstFirst
	if covered.IsEmpty() {
		// Re-building from scratch; incremental updates prefer FirstFirst.
		rootOrder = orderFirstLast
	}
	todoStack := []todoItem{{kind: todoVisit, head: head, order: rootOrder}}

	for len(todoStack) > 0 {
		todo := todoStack[len(todoStack)-1]
		todoStack = todoStack[:len(todoStack)-1]

		switch todo.kind {
		case todoVisit:
			knownID, hasKnownID := todo.knownID, todo.hasKnownID
			if !hasKnownID {
				var err error
				knownID, hasKnownID, err = store.VertexIDWithMaxGroup(ctx, todo.head, group)
				if err != nil {
					return nil, err
				}
			}
			if hasKnownID && covered.Contains(knownID) {
				todoStack = append(todoStack, todoItem{kind: todoAssignedID, id: knownID})
				continue
			}
			parentNames, err := parents.ParentNames(ctx, todo.head)
			if err != nil {
				return nil, err
			}
			todoStack = append(todoStack, todoItem{
				kind:       todoAssign,
				head:       todo.head,
				knownID:    knownID,
				hasKnownID: hasKnownID,
				parentLen:  len(parentNames),
				order:      todo.order,
			})
			// The stack is LIFO: the parent pushed last is visited first.
			visit := append([]Vertex(nil), parentNames...)
			firstParent := 0
			if todo.order == orderFirstFirst {
				for i, j := 0, len(visit)-1; i < j; i, j = i+1, j-1 {
					visit[i], visit[j] = visit[j], visit[i]
				}
				firstParent = len(visit) - 1
			}
			for i, p := range visit {
				parentID, ok, err := store.VertexIDWithMaxGroup(ctx, p, group)
				if err != nil {
					return nil, err
				}
				switch {
				case ok && covered.Contains(parentID):
					todoStack = append(todoStack, todoItem{kind: todoAssignedID, id: parentID})
				case ok:
					// IdMap has the entry but the DAG missed it; go deeper
					// to re-cover it.
					todoStack = append(todoStack, todoItem{
						kind:       todoVisit,
						head:       p,
						knownID:    parentID,
						hasKnownID: true,
						order:      todo.order,
					})
				default:
					parentOrder := orderFirstLast
					if todo.order == orderFirstFirst && i == firstParent {
						parentOrder = orderFirstFirst
					}
					todoStack = append(todoStack, todoItem{
						kind:  todoVisit,
						head:  p,
						order: parentOrder,
					})
				}
			}

		case todoAssign:
			parentStart := len(parentIDs) - todo.parentLen
			knownID, hasKnownID := todo.knownID, todo.hasKnownID
			if !hasKnownID {
				var err error
				knownID, hasKnownID, err = store.VertexIDWithMaxGroup(ctx, todo.head, group)
				if err != nil {
					return nil, err
				}
			}
			var id ID
			if hasKnownID && covered.Contains(knownID) {
				id = knownID
			} else {
				ids := parentIDs[parentStart:]
				if todo.order == orderFirstLast {
					reversed := make([]ID, len(ids))
					for i, p := range ids {
						reversed[len(ids)-1-i] = p
					}
					ids = reversed
				}
				if hasKnownID {
					id = knownID
				} else {
					candidate := group.MinID()
					for _, p := range ids {
						if p+1 > candidate {
							candidate = p + 1
						}
					}
					var err error
					id, err = adjustCandidateID(ctx, store, covered, reserved, candidate)
					if err != nil {
						return nil, err
					}
				}
				if id.Group() != group {
					return nil, &IdOverflowError{Group: group}
				}
				covered.Push(id)
				if !hasKnownID {
					if err := store.Insert(ctx, id, todo.head); err != nil {
						return nil, err
					}
					metrics.IDsAssignedTotal.Inc()
				}
				for _, p := range ids {
					if p >= id {
						return nil, bugf("ids are not topo-sorted: %s (%s) has parent id %s",
							id, todo.head, p)
					}
				}
				outcome.PushEdge(id, ids)
			}
			parentIDs = parentIDs[:parentStart]
			todoStack = append(todoStack, todoItem{kind: todoAssignedID, id: id})

		case todoAssignedID:
			if !covered.Contains(todo.id) {
				return nil, bugf(
					"id %s pushed as a parent but it is not yet covered by the segment dag",
					todo.id)
			}
			parentIDs = append(parentIDs, todo.id)
		}
	}

	return outcome, nil
}

// adjustCandidateID picks the smallest ID >= candidate that is not
// covered, not reserved, and not already present in the IdMap. The IdMap
// check handles an IdMap that ran ahead of the segment DAG after a crashed
// co-writer.
func adjustCandidateID(
	ctx context.Context,
	m IdMap,
	covered *IdSet,
	reserved *IdSet,
	candidate ID,
) (ID, error) {
	for {
		for {
			if covered.Contains(candidate) {
				candidate = covered.NextFree(candidate)
				continue
			}
			if reserved.Contains(candidate) {
				candidate = reserved.NextFree(candidate)
				continue
			}
			break
		}
		next := candidate
		for {
			exists, err := m.ContainsID(ctx, next)
			if err != nil {
				return 0, err
			}
			if !exists {
				break
			}
			next++
		}
		if next == candidate {
			return candidate, nil
		}
		candidate = next
	}
}
