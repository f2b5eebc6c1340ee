package services

import (
	"context"
	"testing"

	"cp-vs-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func div3Ratings() map[string]int {
	return map[string]int{
		"A": 800, "B": 1100, "C": 1300, "D": 1500, "E": 1700, "F": 1900,
	}
}

func TestSelectProblemsFullSet(t *testing.T) {
	judge := newFakeJudge()
	judge.addFakeProblems(3, []int{100, 101, 102}, div3Ratings())
	selector := NewProblemSelector(judge)

	selected, err := selector.SelectProblems(context.Background(), "alice", "bob", 2)
	require.NoError(t, err)
	require.Len(t, selected, 6)

	for i, index := range models.ProblemIndices {
		assert.Equal(t, index, selected[i].ProblemIndex)
		assert.Equal(t, models.ProblemPoints[index], selected[i].Points)
		assert.Equal(t, 3, selected[i].Division)
		assert.Contains(t, selected[i].ProblemURL, "/problemset/problem/")
	}
}

func TestSelectProblemsSkipsSolved(t *testing.T) {
	judge := newFakeJudge()
	judge.addFakeProblems(3, []int{100, 101}, div3Ratings())
	judge.solved["alice"] = map[string]bool{"100A": true}
	judge.solved["bob"] = map[string]bool{"101A": true}
	selector := NewProblemSelector(judge)

	// Every A candidate is solved by one of the two; the index is omitted.
	selected, err := selector.SelectProblems(context.Background(), "alice", "bob", 2)
	require.NoError(t, err)

	for _, p := range selected {
		assert.NotEqual(t, "A", p.ProblemIndex)
		assert.NotEqual(t, "100A", p.ProblemCode)
		assert.NotEqual(t, "101A", p.ProblemCode)
	}
	assert.Len(t, selected, 5)
}

func TestSelectProblemsPrefersTargetDivision(t *testing.T) {
	judge := newFakeJudge()
	judge.addFakeProblems(3, []int{100}, div3Ratings())
	judge.addFakeProblems(1, []int{200}, map[string]int{
		"A": 1600, "B": 1900, "C": 2200, "D": 2500, "E": 2800, "F": 3100,
	})
	selector := NewProblemSelector(judge)

	selected, err := selector.SelectProblems(context.Background(), "alice", "bob", 2)
	require.NoError(t, err)
	require.Len(t, selected, 6)

	for _, p := range selected {
		assert.Contains(t, p.ProblemCode, "100")
	}
}

func TestSelectProblemsFallsBackAcrossDivisions(t *testing.T) {
	judge := newFakeJudge()
	// No division-3 contests at all; only division 2 material exists.
	judge.addFakeProblems(2, []int{300}, map[string]int{
		"A": 1000, "B": 1300, "C": 1600, "D": 1900, "E": 2200, "F": 2500,
	})
	selector := NewProblemSelector(judge)

	selected, err := selector.SelectProblems(context.Background(), "alice", "bob", 2)
	require.NoError(t, err)
	require.Len(t, selected, 6)

	for _, p := range selected {
		assert.Contains(t, p.ProblemCode, "300")
	}
}

func TestSelectProblemsEmptyProblemset(t *testing.T) {
	judge := newFakeJudge()
	selector := NewProblemSelector(judge)

	selected, err := selector.SelectProblems(context.Background(), "alice", "bob", 2)
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestDifficultyToDivision(t *testing.T) {
	assert.Equal(t, 4, difficultyToDivision[1])
	assert.Equal(t, 3, difficultyToDivision[2])
	assert.Equal(t, 2, difficultyToDivision[3])
	assert.Equal(t, 1, difficultyToDivision[4])
}
