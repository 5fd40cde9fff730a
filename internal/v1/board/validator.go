// Package board answers whether a candidate word can be traced on the
// shared letter grid as a simple path: consecutive cells must be
// 8-adjacent (diagonals included) and no cell may be reused.
package board

import (
	"strings"

	"github.com/lexiclash/server/internal/v1/types"
)

// Cell is a grid coordinate.
type Cell struct {
	Row int
	Col int
}

// PositionsIndex maps each normalized cell token to the coordinates where
// it appears. Derived from the grid; rebuilt whenever the grid changes.
type PositionsIndex map[string][]Cell

// BuildPositionsIndex derives the token -> coordinates index for a grid.
func BuildPositionsIndex(grid types.Grid) PositionsIndex {
	idx := make(PositionsIndex)
	for r, row := range grid {
		for c, token := range row {
			key := normalizeToken(token)
			if key == "" {
				continue
			}
			idx[key] = append(idx[key], Cell{Row: r, Col: c})
		}
	}
	return idx
}

// IsOnBoard reports whether word traces on grid as a simple path.
// Comparison is case-insensitive per cell. Cells holding multi-character
// tokens match the equal-length prefix of the remaining word.
func IsOnBoard(word string, grid types.Grid, idx PositionsIndex) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" || grid.Empty() {
		return false
	}
	if idx == nil {
		idx = BuildPositionsIndex(grid)
	}

	// Prune: every token consumed by any path must exist on the board, so
	// a first cell must match a prefix of the word.
	starts := startingCells(word, grid, idx)
	if len(starts) == 0 {
		return false
	}

	visited := make([]bool, grid.Rows()*grid.Cols())
	cols := grid.Cols()
	for _, s := range starts {
		tokenLen := len(normalizeToken(grid[s.Row][s.Col]))
		visited[s.Row*cols+s.Col] = true
		if dfs(word[tokenLen:], s, grid, visited) {
			return true
		}
		visited[s.Row*cols+s.Col] = false
	}
	return false
}

// startingCells returns the cells whose token is a prefix of word.
func startingCells(word string, grid types.Grid, idx PositionsIndex) []Cell {
	var starts []Cell
	for token, cells := range idx {
		if strings.HasPrefix(word, token) {
			starts = append(starts, cells...)
		}
	}
	return starts
}

func dfs(rest string, at Cell, grid types.Grid, visited []bool) bool {
	if rest == "" {
		return true
	}

	cols := grid.Cols()
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			nr, nc := at.Row+dr, at.Col+dc
			if nr < 0 || nr >= grid.Rows() || nc < 0 || nc >= cols {
				continue
			}
			if visited[nr*cols+nc] {
				continue
			}
			token := normalizeToken(grid[nr][nc])
			if token == "" || !strings.HasPrefix(rest, token) {
				continue
			}
			visited[nr*cols+nc] = true
			if dfs(rest[len(token):], Cell{Row: nr, Col: nc}, grid, visited) {
				return true
			}
			visited[nr*cols+nc] = false
		}
	}
	return false
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
