package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/alloc"
)

func TestParseScript(t *testing.T) {
	ops, err := parseScript(strings.NewReader(`
# warm up
a 100
a 4KiB 64

d 0
free 1
`))
	require.NoError(t, err)
	require.Equal(t, []op{
		{line: 3, kind: opAlloc, layout: alloc.Layout{Size: 100, Align: 8}},
		{line: 4, kind: opAlloc, layout: alloc.Layout{Size: 4096, Align: 64}},
		{line: 6, kind: opDealloc, index: 0},
		{line: 7, kind: opDealloc, index: 1},
	}, ops)
}

func TestParseScript_Errors(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{"unknown verb", "x 1\n", `line 1: unknown operation "x"`},
		{"missing size", "a\n", "line 1: usage"},
		{"bad align", "a 8 3\n", "line 1: alloc: alignment must be"},
		{"bad index", "a 8\nd -1\n", "line 2: bad allocation index"},
		{"extra fields", "d 1 2\n", "line 1: usage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScript(strings.NewReader(tt.script))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
