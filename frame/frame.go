package frame

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cairnscript/cairn-core/errors"
	"github.com/cairnscript/cairn-core/value"
)

// State tracks a frame's position in its lifecycle.
type State uint8

const (
	StateAllocated State = iota
	StatePushed
	StateRunning
	StateDropped
)

var stateNames = [...]string{"allocated", "pushed", "running", "dropped"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

// reuseCacheSlots bounds the dropped-varlist cache.
const reuseCacheSlots = 8

// poison is the sentinel's prior target. Accessing it means a walk
// ran past the bottom of the stack.
var poison Frame

// Frame describes one in-flight invocation: the output slot, the
// action's paramlist (the "phase"), the varlist holding locals, and
// the source being evaluated.
type Frame struct {
	out         *value.Cell
	phase       *value.Series
	varlist     *value.Series
	source      *value.Series
	sourceIndex int
	label       string

	prior *Frame
	state State
}

// New prepares a frame in the Allocated state. phase may be nil for
// frames that evaluate source without invoking an action.
func New(out *value.Cell, phase *value.Series, source *value.Series, label string) *Frame {
	if out == nil {
		panic("frame requires an output cell")
	}
	if phase != nil && !phase.IsParamlist() {
		panic("frame phase must be a paramlist")
	}
	return &Frame{out: out, phase: phase, source: source, label: label}
}

func (f *Frame) Out() *value.Cell       { return f.out }
func (f *Frame) Phase() *value.Series   { return f.phase }
func (f *Frame) Varlist() *value.Series { return f.varlist }
func (f *Frame) Source() *value.Series  { return f.source }
func (f *Frame) SourceIndex() int       { return f.sourceIndex }
func (f *Frame) Label() string          { return f.label }
func (f *Frame) State() State           { return f.state }

// SetSourceIndex moves the evaluation cursor.
func (f *Frame) SetSourceIndex(i int) { f.sourceIndex = i }

// Prior returns the next frame down. Walking past the bottom sentinel
// is a bug, caught here.
func (f *Frame) Prior() *Frame {
	if f.prior == &poison {
		panic("frame walk past the bottom sentinel")
	}
	return f.prior
}

// Stack is the frame chain for one interpreter instance.
type Stack struct {
	heap     *value.Heap
	bottom   *Frame
	top      *Frame
	depth    int
	maxDepth int

	dummy       *value.Series
	userContext *value.Series
	reuse       []*value.Series
}

// Startup establishes the chain with its sentinel bottom frame. The
// sentinel is bound to a dummy action and is permanently resident;
// its output slot is a pairing so the cell has pool-backed identity.
// maxDepth 0 means unbounded.
func Startup(heap *value.Heap, maxDepth int) (*Stack, error) {
	dummy, err := heap.MakeParamlist(0)
	if err != nil {
		return nil, err
	}
	s := &Stack{
		heap:     heap,
		maxDepth: maxDepth,
		dummy:    dummy,
	}
	bottom := &Frame{
		out:   heap.AllocPairing(),
		phase: dummy,
		label: "bottom",
		prior: &poison,
		state: StateRunning,
	}
	s.bottom = bottom
	s.top = bottom
	return s, nil
}

func (s *Stack) Depth() int     { return s.depth }
func (s *Stack) Top() *Frame    { return s.top }
func (s *Stack) Bottom() *Frame { return s.bottom }

// DummyPhase exposes the sentinel's action for walkers that need to
// recognize it.
func (s *Stack) DummyPhase() *value.Series { return s.dummy }

// SetUserContext designates the fallback context returned when no
// action frame is on the stack.
func (s *Stack) SetUserContext(varlist *value.Series) {
	if varlist != nil && !varlist.IsVarlist() {
		panic("user context must be a varlist")
	}
	s.userContext = varlist
}

// Push activates a frame: depth check, varlist attachment, chain
// link. Depth overflow is catchable, since recursion limits are a
// script-level condition.
func (s *Stack) Push(f *Frame) error {
	if f.state != StateAllocated {
		panic(fmt.Sprintf("push of %s frame", f.state))
	}
	if s.maxDepth > 0 && s.depth+1 > s.maxDepth {
		return errors.FrameDepthExceeded(s.depth+1, s.maxDepth)
	}
	if f.phase != nil {
		varlist, err := s.takeVarlist(f.phase.Len() - 1)
		if err != nil {
			return err
		}
		f.varlist = varlist
	}
	f.prior = s.top
	s.top = f
	s.depth++
	f.state = StatePushed
	return nil
}

// Run marks the top frame as past argument gathering.
func (s *Stack) Run(f *Frame) {
	if f != s.top {
		panic("Run on a frame that is not on top")
	}
	if f.state != StatePushed {
		panic(fmt.Sprintf("Run on %s frame", f.state))
	}
	f.state = StateRunning
}

// Drop unwinds the top frame. Out-of-order drops are a bug in the
// caller's unwind logic and panic.
func (s *Stack) Drop(f *Frame) {
	if f != s.top {
		panic("out-of-order frame drop")
	}
	if f == s.bottom {
		panic("drop of the bottom sentinel")
	}
	s.top = f.prior
	s.depth--
	f.state = StateDropped

	if f.varlist != nil {
		s.recycleVarlist(f.varlist)
		f.varlist = nil
	}
}

// takeVarlist reuses a cached varlist of matching shape or makes a
// fresh one.
func (s *Stack) takeVarlist(numVars int) (*value.Series, error) {
	for i, v := range s.reuse {
		if v.Len() == numVars+1 {
			last := len(s.reuse) - 1
			s.reuse[i] = s.reuse[last]
			s.reuse[last] = nil
			s.reuse = s.reuse[:last]
			// Freshen the variable slots; the archetype in slot 0
			// already references this varlist.
			for n := 1; n <= numVars; n++ {
				v.At(n).Prep()
			}
			return v, nil
		}
	}
	return s.heap.MakeVarlist(numVars)
}

// recycleVarlist keeps a dropped frame's locals storage for the next
// call of matching shape. A managed varlist escaped into user code as
// a context and cannot be recycled.
func (s *Stack) recycleVarlist(v *value.Series) {
	if v.IsManaged() {
		return
	}
	if len(s.reuse) < reuseCacheSlots {
		s.reuse = append(s.reuse, v)
		return
	}
	s.heap.Free(v)
}

// CurrentContext resolves where native code is conceptually running:
// the varlist of the nearest real action frame. With no action on the
// stack the designated user context stands in, loudly, because
// failures in that position cannot be attributed to any call site.
func (s *Stack) CurrentContext() *value.Series {
	for f := s.top; f != s.bottom; f = f.Prior() {
		if f.phase != nil && f.phase != s.dummy {
			return f.varlist
		}
	}
	Logger().Warn("current context requested outside any action; using user context fallback",
		zap.Int("depth", s.depth))
	return s.userContext
}

// Shutdown releases the sentinel and its dummy action. The chain must
// already be unwound to the bottom.
func (s *Stack) Shutdown() error {
	if s.top != s.bottom {
		return errors.Unbalanced(fmt.Sprintf("frame stack shut down with %d frames active", s.depth))
	}
	for _, v := range s.reuse {
		s.heap.Free(v)
	}
	s.reuse = nil
	s.heap.FreePairing(s.bottom.out)
	s.heap.Free(s.dummy)
	s.bottom.state = StateDropped
	s.bottom = nil
	s.top = nil
	return nil
}
