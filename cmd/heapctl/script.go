package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/config"
)

// opKind is the verb of one script line.
type opKind byte

const (
	opAlloc   opKind = 'a'
	opDealloc opKind = 'd'
)

// op is one parsed script line.
//
//	a <size> [align]   allocate; the allocation gets the next index
//	d <index>          free the allocation with that index
type op struct {
	line   int
	kind   opKind
	layout alloc.Layout
	index  int
}

const defaultAlign = 8

// parseScript reads one operation per line. Blank lines and lines starting
// with '#' are skipped.
func parseScript(r io.Reader) ([]op, error) {
	var ops []op
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		o, err := parseOp(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		o.line = line
		ops = append(ops, o)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

func parseOp(text string) (op, error) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "a", "alloc":
		if len(fields) < 2 || len(fields) > 3 {
			return op{}, fmt.Errorf("usage: a <size> [align]")
		}
		size, err := config.ParseSize(fields[1])
		if err != nil {
			return op{}, err
		}
		align := uint64(defaultAlign)
		if len(fields) == 3 {
			if align, err = config.ParseSize(fields[2]); err != nil {
				return op{}, err
			}
		}
		l, err := alloc.NewLayout(uintptr(size), uintptr(align))
		if err != nil {
			return op{}, err
		}
		return op{kind: opAlloc, layout: l}, nil

	case "d", "dealloc", "free":
		if len(fields) != 2 {
			return op{}, fmt.Errorf("usage: d <index>")
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil || idx < 0 {
			return op{}, fmt.Errorf("bad allocation index %q", fields[1])
		}
		return op{kind: opDealloc, index: idx}, nil

	default:
		return op{}, fmt.Errorf("unknown operation %q", fields[0])
	}
}

// allocation is the outcome of one alloc op.
type allocation struct {
	Index  int          `json:"index"`
	Size   uintptr      `json:"size"`
	Align  uintptr      `json:"align"`
	Handle alloc.Handle `json:"handle,omitempty"`
	Failed bool         `json:"failed,omitempty"`
	Freed  bool         `json:"freed,omitempty"`
}

// simulation runs a script against one heap.
type simulation struct {
	heap   *heap.Locked
	arena  *arena.Arena
	allocs []allocation
}

// run executes ops in order. Out-of-memory is recorded and the script
// continues; script mistakes abort it.
func (s *simulation) run(ops []op) error {
	for _, o := range ops {
		switch o.kind {
		case opAlloc:
			if err := s.alloc(o); err != nil {
				return fmt.Errorf("line %d: %w", o.line, err)
			}
		case opDealloc:
			if err := s.dealloc(o); err != nil {
				return fmt.Errorf("line %d: %w", o.line, err)
			}
		}
	}
	return nil
}

func (s *simulation) alloc(o op) error {
	a := allocation{Index: len(s.allocs), Size: o.layout.Size, Align: o.layout.Align}
	h, err := s.heap.Alloc(o.layout)
	switch {
	case errors.Is(err, heap.ErrNoMemory):
		a.Failed = true
		printVerbose("#%d alloc %s: out of memory\n", a.Index, o.layout)
	case err != nil:
		return err
	default:
		a.Handle = h
		// Touch the block so the mapping really backs it
		b, err := s.arena.Bytes(h, o.layout.Size)
		if err != nil {
			return fmt.Errorf("alloc #%d: %w", a.Index, err)
		}
		for i := range b {
			b[i] = byte(a.Index)
		}
		printVerbose("#%d alloc %s -> %#x\n", a.Index, o.layout, uintptr(h))
	}
	s.allocs = append(s.allocs, a)
	return nil
}

func (s *simulation) dealloc(o op) error {
	if o.index >= len(s.allocs) {
		return fmt.Errorf("free #%d: no such allocation", o.index)
	}
	a := &s.allocs[o.index]
	switch {
	case a.Failed:
		return fmt.Errorf("free #%d: allocation failed", o.index)
	case a.Freed:
		return fmt.Errorf("free #%d: already freed", o.index)
	}
	s.heap.Dealloc(a.Handle, alloc.Layout{Size: a.Size, Align: a.Align})
	a.Freed = true
	printVerbose("#%d free %#x\n", o.index, uintptr(a.Handle))
	return nil
}

// live returns the allocations that are neither failed nor freed.
func (s *simulation) live() int {
	n := 0
	for _, a := range s.allocs {
		if !a.Failed && !a.Freed {
			n++
		}
	}
	return n
}
