package runtime

import (
	goerrors "errors"

	"go.uber.org/zap"

	cairncore "github.com/cairnscript/cairn-core"
	"github.com/cairnscript/cairn-core/frame"
	"github.com/cairnscript/cairn-core/mem"
	"github.com/cairnscript/cairn-core/stack"
	"github.com/cairnscript/cairn-core/value"
)

// Runtime is one interpreter memory core: heap, data stack, and
// frame stack sharing a single accountant. It is single-writer state;
// callers serialize access, matching the cooperative model.
type Runtime struct {
	acct   *mem.Accountant
	heap   *value.Heap
	data   *stack.DataStack
	frames *frame.Stack
	logger *zap.Logger
}

// New brings the core up in dependency order. A partial failure
// unwinds whatever already started.
func New(cfg Config) (*Runtime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mem.SetLogger(logger.Named("mem"))
	value.SetLogger(logger.Named("value"))
	frame.SetLogger(logger.Named("frame"))

	acct := mem.NewAccountant(cfg.MemLimit)
	heap := value.NewHeap(cfg.Scale, acct, cfg.AlwaysDirect)

	data, err := stack.New(heap, cfg.DataStackInitial, cfg.DataStackLimit)
	if err != nil {
		heap.Shutdown()
		return nil, err
	}

	frames, err := frame.Startup(heap, cfg.MaxFrameDepth)
	if err != nil {
		data.Close()
		heap.Shutdown()
		return nil, err
	}

	// The default user context anchors current-context resolution
	// when no action is on the stack.
	user, err := heap.MakeVarlist(0)
	if err != nil {
		frames.Shutdown()
		data.Close()
		heap.Shutdown()
		return nil, err
	}
	if err := heap.Manage(user); err != nil {
		return nil, err
	}
	frames.SetUserContext(user)

	logger.Info("memory core started",
		zap.Int("scale", cfg.Scale),
		zap.Uint64("mem_limit", cfg.MemLimit),
		zap.Bool("always_direct", cfg.AlwaysDirect))
	return &Runtime{
		acct:   acct,
		heap:   heap,
		data:   data,
		frames: frames,
		logger: logger,
	}, nil
}

// Heap returns the series and cell allocator.
func (r *Runtime) Heap() *value.Heap { return r.heap }

// Data returns the transient cell stack.
func (r *Runtime) Data() *stack.DataStack { return r.data }

// Frames returns the call-frame stack.
func (r *Runtime) Frames() *frame.Stack { return r.frames }

// Accountant returns the shared usage counter.
func (r *Runtime) Accountant() *mem.Accountant { return r.acct }

// Stats implements cairncore.StatsSource over the whole core.
func (r *Runtime) Stats() []cairncore.PoolStats { return r.heap.Stats() }

// Close tears the core down in reverse order and reports everything
// that did not unwind cleanly: active frames, a non-empty data stack,
// leaked manual series, or unreturned memory.
func (r *Runtime) Close() error {
	var errs []error

	if err := r.frames.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := r.data.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, leak := range r.heap.LeakReport() {
		r.logger.Error("leak at shutdown", zap.String("object", leak))
	}
	if err := r.heap.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if usage := r.acct.Usage(); usage != 0 {
		r.logger.Error("memory usage nonzero after shutdown",
			zap.Uint64("bytes", usage))
	}

	r.logger.Info("memory core stopped")
	return goerrors.Join(errs...)
}

var _ cairncore.StatsSource = (*Runtime)(nil)
