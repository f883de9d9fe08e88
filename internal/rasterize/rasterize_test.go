package rasterize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes one file per page the way pdftoppm names them
type fakeRunner struct {
	pages   int
	padding int
	err     error
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, []byte("Syntax Error: Couldn't find trailer dictionary"), f.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= f.pages; i++ {
		path := fmt.Sprintf("%s-%0*d.png", prefix, f.padding, i)
		if err := os.WriteFile(path, []byte(fmt.Sprintf("page-%d", i)), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

var pdf = []byte("%PDF-1.7\n...")

func TestRasterizer_Rasterize(t *testing.T) {
	tests := []struct {
		name      string
		runner    *fakeRunner
		maxPages  int
		input     []byte
		wantPages []string
		wantErr   bool
	}{
		{
			name:      "pages in document order",
			runner:    &fakeRunner{pages: 3},
			maxPages:  5,
			input:     pdf,
			wantPages: []string{"page-1", "page-2", "page-3"},
		},
		{
			name:      "extra pages dropped",
			runner:    &fakeRunner{pages: 3},
			maxPages:  2,
			input:     pdf,
			wantPages: []string{"page-1", "page-2"},
		},
		{
			name:      "zero padded names sort numerically",
			runner:    &fakeRunner{pages: 12, padding: 2},
			maxPages:  12,
			input:     pdf,
			wantPages: []string{"page-1", "page-2", "page-3", "page-4", "page-5", "page-6", "page-7", "page-8", "page-9", "page-10", "page-11", "page-12"},
		},
		{name: "not a pdf", runner: &fakeRunner{pages: 1}, maxPages: 5, input: []byte("hello"), wantErr: true},
		{name: "empty input", runner: &fakeRunner{pages: 1}, maxPages: 5, input: nil, wantErr: true},
		{name: "renderer fails", runner: &fakeRunner{err: errors.New("exit status 1")}, maxPages: 5, input: pdf, wantErr: true},
		{name: "no pages produced", runner: &fakeRunner{pages: 0}, maxPages: 5, input: pdf, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Config{MaxPages: tt.maxPages, Scale: 1, TempDir: t.TempDir()}, tt.runner, nil)

			pages, err := r.Rasterize(context.Background(), tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConversionFailed)
				return
			}
			require.NoError(t, err)

			got := make([]string, len(pages))
			for i, p := range pages {
				got[i] = string(p)
			}
			assert.Equal(t, tt.wantPages, got)
		})
	}
}

func TestRasterizer_CommandLine(t *testing.T) {
	runner := &fakeRunner{pages: 1}
	r := New(Config{Binary: "/usr/bin/pdftoppm", MaxPages: 4, Scale: 2, TempDir: t.TempDir()}, runner, nil)

	_, err := r.Rasterize(context.Background(), pdf)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "/usr/bin/pdftoppm", call[0])
	assert.Equal(t, []string{"-png", "-r", "144", "-f", "1", "-l", "4"}, call[1:8])
}
