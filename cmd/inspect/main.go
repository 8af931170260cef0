package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/cairnscript/cairn-core/frame"
	"github.com/cairnscript/cairn-core/mem"
	"github.com/cairnscript/cairn-core/runtime"
	"github.com/cairnscript/cairn-core/value"
)

func main() {
	var (
		scale       = flag.Int("scale", 1, "Pool segment unit multiplier")
		limit       = flag.Uint64("limit", 0, "Memory quota in bytes (0 = unlimited)")
		direct      = flag.Bool("direct", false, "Bypass pooling; one platform allocation per request")
		workload    = flag.Int("workload", 500, "Synthetic workload size (series count)")
		verbose     = flag.Bool("v", false, "Log core activity to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg := runtime.DefaultConfig()
	cfg.Scale = *scale
	if *limit != 0 {
		cfg.MemLimit = *limit
	}
	if *direct {
		cfg.AlwaysDirect = true
	}
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Logger = logger
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, *workload); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *workload); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg runtime.Config, workload int) error {
	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("start core: %w", err)
	}
	defer rt.Close()

	if err := churn(rt, workload); err != nil {
		return fmt.Errorf("workload: %w", err)
	}

	dump(os.Stdout, rt)
	return nil
}

// churn exercises every layer: series of varied widths and sizes,
// mid and head expansion, data stack drains, and a burst of frame
// pushes. Roughly half the series stay live so the dump shows real
// occupancy.
func churn(rt *runtime.Runtime, n int) error {
	h := rt.Heap()

	live := make([]*value.Series, 0, n)
	for i := 0; i < n; i++ {
		size := 1 << (i % 11)
		s, err := h.MakeSeries(size, 1, 0)
		if err != nil {
			return err
		}
		for filled := 0; filled < size; filled += 16 {
			if err := h.AppendBytes(s, []byte("0123456789abcdef")); err != nil {
				return err
			}
		}
		if i%3 == 0 {
			if err := h.Expand(s, 0, 8); err != nil {
				return err
			}
		}
		if i%2 == 0 {
			h.Free(s)
		} else {
			live = append(live, s)
		}
	}

	ds := rt.Data()
	var c value.Cell
	c.Prep()
	for round := 0; round < n/10; round++ {
		mark := ds.Mark()
		for i := int64(0); i < 20; i++ {
			c.SetInteger(i)
			if err := ds.Push(&c); err != nil {
				return err
			}
		}
		arr, err := ds.DrainFrom(mark)
		if err != nil {
			return err
		}
		h.Free(arr)
	}

	phase, err := h.MakeParamlist(3)
	if err != nil {
		return err
	}
	frames := rt.Frames()
	for i := 0; i < 64; i++ {
		out := new(value.Cell)
		out.Prep()
		f := frame.New(out, phase, nil, "churn")
		if err := frames.Push(f); err != nil {
			return err
		}
		frames.Run(f)
		frames.Drop(f)
	}
	h.Free(phase)

	for _, s := range live {
		h.Free(s)
	}
	return nil
}

func dump(w *os.File, rt *runtime.Runtime) {
	fmt.Fprintf(w, "usage counter: %d bytes\n", rt.Accountant().Usage())
	fmt.Fprintf(w, "data stack depth %d, frame depth %d\n",
		rt.Data().Depth(), rt.Frames().Depth())
	mem.DumpPools(w, "pool", rt.Stats())
}
