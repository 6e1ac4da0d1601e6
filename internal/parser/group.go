package parser

import (
	"fmt"

	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/config"
)

// Node is a member of a record group: a Record or a nested Group.
type Node interface {
	Name() string
}

// Group enforces ordering and occurrence constraints over its child
// records and nested groups. Sequential groups require children in
// declared order; unordered groups accept any declared child while counts
// allow. All matching state lives in GroupState, keeping the tree
// shareable.
type Group struct {
	name      string
	Ordered   bool
	MinOccurs int
	MaxOccurs int
	Children  []Node
}

// NewGroup creates a group parser.
func NewGroup(name string, ordered bool) *Group {
	return &Group{name: name, Ordered: ordered, MinOccurs: 0, MaxOccurs: config.Unbounded}
}

func (g *Group) Name() string { return g.name }

// GroupState tracks one reader's progress through a group tree.
type GroupState struct {
	states map[*Group]*groupState
}

// NewGroupState creates fresh matching state for a reader.
func NewGroupState() *GroupState {
	return &GroupState{states: make(map[*Group]*groupState)}
}

type groupState struct {
	iterations  int
	childIndex  int
	childCounts map[Node]int
	started     bool
}

func (s *GroupState) of(g *Group) *groupState {
	st, ok := s.states[g]
	if !ok {
		st = &groupState{childCounts: make(map[Node]int)}
		s.states[g] = st
	}
	return st
}

// Match routes the current record to the first definition the group's
// ordering and occurrence constraints allow. A nil record with a nil error
// means no definition in the expected set matched.
func (g *Group) Match(state *GroupState, ctx *UnmarshallingContext) (*Record, error) {
	st := state.of(g)

	rec, err := g.matchCurrent(state, st, ctx)
	if rec != nil || err != nil {
		return rec, err
	}

	// Nothing matched in the current iteration; try to open a new one when
	// repetition is allowed and the current iteration is complete.
	if !st.started {
		return nil, nil
	}
	if g.MaxOccurs != config.Unbounded && st.iterations+1 >= g.MaxOccurs {
		return nil, nil
	}
	if err := g.checkIteration(st, ctx); err != nil {
		return nil, nil
	}
	fresh := &groupState{childCounts: make(map[Node]int)}
	rec, err = g.matchCurrent(state, fresh, ctx)
	if rec == nil || err != nil {
		return rec, err
	}
	fresh.iterations = st.iterations + 1
	fresh.started = true
	state.states[g] = fresh
	return rec, nil
}

func (g *Group) matchCurrent(state *GroupState, st *groupState, ctx *UnmarshallingContext) (*Record, error) {
	if g.Ordered {
		return g.matchSequential(state, st, ctx)
	}
	return g.matchUnordered(state, st, ctx)
}

func (g *Group) matchSequential(state *GroupState, st *groupState, ctx *UnmarshallingContext) (*Record, error) {
	for i := st.childIndex; i < len(g.Children); i++ {
		child := g.Children[i]
		if !g.childMatches(state, child, ctx) {
			continue
		}
		if i == st.childIndex {
			if max := g.maxOf(child); max != config.Unbounded && st.childCounts[child] >= max {
				// Exhausted; the same input may open the next child.
				continue
			}
		} else {
			// Skipping forward closes out the children in between; their
			// minimum occurrences must already be satisfied.
			for j := st.childIndex; j < i; j++ {
				skipped := g.Children[j]
				if st.childCounts[skipped] < g.minOf(skipped) {
					return nil, &beanerr.OccurrenceError{
						RecordName: skipped.Name(),
						LineNumber: ctx.Record.LineNumber,
						Reason:     fmt.Sprintf("expected at least %d occurrence(s) before %q", g.minOf(skipped), child.Name()),
					}
				}
			}
			st.childIndex = i
		}
		return g.accept(state, st, child, ctx)
	}
	return nil, nil
}

func (g *Group) matchUnordered(state *GroupState, st *groupState, ctx *UnmarshallingContext) (*Record, error) {
	for _, child := range g.Children {
		if max := g.maxOf(child); max != config.Unbounded && st.childCounts[child] >= max {
			continue
		}
		if !g.childMatches(state, child, ctx) {
			continue
		}
		return g.accept(state, st, child, ctx)
	}
	return nil, nil
}

func (g *Group) childMatches(state *GroupState, child Node, ctx *UnmarshallingContext) bool {
	switch n := child.(type) {
	case *Record:
		return n.Matches(ctx)
	case *Group:
		// A nested group matches when any of its children could accept the
		// record in the group's current state.
		rec, err := n.peek(state, ctx)
		return rec && err == nil
	}
	return false
}

// peek reports whether the group could accept the record without mutating
// occurrence counts.
func (g *Group) peek(state *GroupState, ctx *UnmarshallingContext) (bool, error) {
	st := state.of(g)
	start := st.childIndex
	if !g.Ordered {
		start = 0
	}
	for i := start; i < len(g.Children); i++ {
		if g.childMatches(state, g.Children[i], ctx) {
			return true, nil
		}
	}
	return false, nil
}

func (g *Group) accept(state *GroupState, st *groupState, child Node, ctx *UnmarshallingContext) (*Record, error) {
	st.started = true
	switch n := child.(type) {
	case *Record:
		st.childCounts[child]++
		if max := g.maxOf(child); max != config.Unbounded && st.childCounts[child] > max {
			return nil, &beanerr.OccurrenceError{
				RecordName: n.Name(),
				LineNumber: ctx.Record.LineNumber,
				Reason:     fmt.Sprintf("record exceeds its maximum of %d occurrence(s)", max),
			}
		}
		return n, nil
	case *Group:
		rec, err := n.Match(state, ctx)
		if rec != nil && st.childCounts[child] == 0 {
			st.childCounts[child]++
		}
		return rec, err
	}
	return nil, nil
}

// Close verifies minimum occurrences at end of input.
func (g *Group) Close(state *GroupState, lineNumber int) error {
	st := state.of(g)
	if !st.started {
		if g.MinOccurs > 0 {
			return &beanerr.OccurrenceError{
				RecordName: g.name,
				LineNumber: lineNumber,
				Reason:     fmt.Sprintf("group expects at least %d occurrence(s)", g.MinOccurs),
			}
		}
		return nil
	}
	if err := g.checkIteration(st, nil); err != nil {
		return err
	}
	if st.iterations+1 < g.MinOccurs {
		return &beanerr.OccurrenceError{
			RecordName: g.name,
			LineNumber: lineNumber,
			Reason:     fmt.Sprintf("group expects at least %d occurrence(s), got %d", g.MinOccurs, st.iterations+1),
		}
	}
	for _, child := range g.Children {
		if sub, ok := child.(*Group); ok {
			if err := sub.Close(state, lineNumber); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkIteration verifies every child met its minimum in the current
// iteration.
func (g *Group) checkIteration(st *groupState, ctx *UnmarshallingContext) error {
	line := 0
	if ctx != nil && ctx.Record != nil {
		line = ctx.Record.LineNumber
	}
	for _, child := range g.Children {
		if st.childCounts[child] < g.minOf(child) {
			return &beanerr.OccurrenceError{
				RecordName: child.Name(),
				LineNumber: line,
				Reason:     fmt.Sprintf("expected at least %d occurrence(s), got %d", g.minOf(child), st.childCounts[child]),
			}
		}
	}
	return nil
}

func (g *Group) minOf(child Node) int {
	switch n := child.(type) {
	case *Record:
		return n.MinOccurs
	case *Group:
		return n.MinOccurs
	}
	return 0
}

func (g *Group) maxOf(child Node) int {
	switch n := child.(type) {
	case *Record:
		return n.MaxOccurs
	case *Group:
		return n.MaxOccurs
	}
	return config.Unbounded
}
