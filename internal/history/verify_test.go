package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/ir"
)

func TestVerifyCleanStore(t *testing.T) {
	s, _ := buildNotebook(t)
	assert.NoError(t, s.Verify())
}

func TestVerifyReportsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, s *Store, cell ir.Name)
		want   string
	}{
		{
			name: "pending left",
			mutate: func(t *testing.T, s *Store, cell ir.Name) {
				_, err := s.SetPending(&ir.CodeCell{Meta: ir.Meta{ID: cell.ID}})
				require.NoError(t, err)
			},
			want: "pending version left",
		},
		{
			name: "unsaved left",
			mutate: func(t *testing.T, s *Store, cell ir.Name) {
				s.AddUnsaved(cell.ID, &ir.Syntax{})
			},
			want: "unsaved nodes left",
		},
		{
			name: "uncommitted child",
			mutate: func(t *testing.T, s *Store, cell ir.Name) {
				n, err := s.Get(cell)
				require.NoError(t, err)
				n.(*ir.CodeCell).Content[0] = ir.ChildItem(ir.Name{Kind: ir.KindSyntax, ID: 0, Version: ir.PendingVersion})
			},
			want: "is not committed",
		},
		{
			name: "child committed after parent",
			mutate: func(t *testing.T, s *Store, cell ir.Name) {
				n, err := s.Get(ir.Name{Kind: ir.KindSyntax, ID: 0})
				require.NoError(t, err)
				n.Base().Created = 9
			},
			want: "after parent",
		},
		{
			name: "dangling parent",
			mutate: func(t *testing.T, s *Store, cell ir.Name) {
				n, err := s.Get(cell)
				require.NoError(t, err)
				n.Base().Parent = ir.Name{Kind: ir.KindNotebook, ID: 0, Version: 4}
			},
			want: "parent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, cell := buildNotebook(t)
			tt.mutate(t, s, cell)
			err := s.Verify()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
