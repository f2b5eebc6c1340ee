package services

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"

	"cp-vs-backend/models"
)

// difficultyToDivision maps the app's difficulty tier to a judge division.
// Difficulty 1 is the easiest (Div. 4), difficulty 4 the hardest (Div. 1).
var difficultyToDivision = map[int]int{
	1: 4,
	2: 3,
	3: 2,
	4: 1,
}

// ratingBand is the expected judge-rating window for one problem index.
type ratingBand struct {
	Min int
	Max int
}

func (b ratingBand) contains(rating int) bool {
	return rating >= b.Min && rating <= b.Max
}

func (b ratingBand) midpoint() float64 {
	return float64(b.Min+b.Max) / 2
}

// divisionBands holds per-index rating windows per division. They are a soft
// preference used to pick among candidates, never to exclude one.
var divisionBands = map[int]map[string]ratingBand{
	4: {
		"A": {800, 900}, "B": {900, 1100}, "C": {1100, 1300},
		"D": {1300, 1500}, "E": {1500, 1700}, "F": {1700, 1900},
	},
	3: {
		"A": {800, 1000}, "B": {1000, 1200}, "C": {1200, 1400},
		"D": {1400, 1600}, "E": {1600, 1800}, "F": {1800, 2000},
	},
	2: {
		"A": {800, 1200}, "B": {1200, 1500}, "C": {1500, 1800},
		"D": {1800, 2100}, "E": {2100, 2400}, "F": {2400, 2700},
	},
	1: {
		"A": {1500, 1800}, "B": {1800, 2100}, "C": {2100, 2400},
		"D": {2400, 2700}, "E": {2700, 3000}, "F": {3000, 3500},
	},
}

// SelectedProblem is one entry of a freshly selected contest problem set.
type SelectedProblem struct {
	ProblemIndex string
	ProblemCode  string
	ProblemURL   string
	Points       int
	Division     int
}

// ProblemSelector builds contest problem sets from the judge's problemset,
// filtered by division and the participants' solved history.
type ProblemSelector struct {
	Judge JudgeAPI
}

func NewProblemSelector(judge JudgeAPI) *ProblemSelector {
	return &ProblemSelector{Judge: judge}
}

type candidate struct {
	problem  JudgeProblem
	division int
	inBand   bool
}

// SelectProblems picks up to six problems, one per index A-F, that neither
// handle has solved. Candidates from a contest of the target division are
// preferred; among those, problems inside the index's rating band win, with
// uniform random choice among ties. An index with no candidate in the target
// division falls back to any division, preferring the target division and
// then proximity to the band midpoint. Indices with no candidate at all are
// omitted.
func (s *ProblemSelector) SelectProblems(ctx context.Context, handle1, handle2 string, difficulty int) ([]SelectedProblem, error) {
	division, ok := difficultyToDivision[difficulty]
	if !ok {
		division = 3
	}
	bands := divisionBands[division]

	solved1, err := s.Judge.SolvedProblems(ctx, handle1)
	if err != nil {
		return nil, err
	}
	solved2, err := s.Judge.SolvedProblems(ctx, handle2)
	if err != nil {
		return nil, err
	}

	problems, err := s.Judge.Problems(ctx)
	if err != nil {
		return nil, err
	}
	contestDivisions, err := s.Judge.ContestDivisions(ctx)
	if err != nil {
		return nil, err
	}

	inDivision := make(map[string][]candidate)
	anyDivision := make(map[string][]candidate)
	for _, p := range problems {
		if p.ContestID == 0 || p.Index == "" {
			continue
		}
		if _, known := models.ProblemPoints[p.Index]; !known {
			continue
		}
		code := p.Code()
		if solved1[code] || solved2[code] {
			continue
		}
		band := bands[p.Index]
		// Problems with no published rating count as in-band rather than
		// being penalized for missing data.
		inBand := p.Rating == 0 || band.contains(p.Rating)
		c := candidate{problem: p, division: contestDivisions[p.ContestID], inBand: inBand}
		anyDivision[p.Index] = append(anyDivision[p.Index], c)
		if c.division == division {
			inDivision[p.Index] = append(inDivision[p.Index], c)
		}
	}

	var selected []SelectedProblem
	for _, index := range models.ProblemIndices {
		pick, ok := pickForIndex(inDivision[index], anyDivision[index], division, bands[index])
		if !ok {
			log.Printf("[Selector] no candidate for index %s in division %d, omitting", index, division)
			continue
		}
		selected = append(selected, SelectedProblem{
			ProblemIndex: index,
			ProblemCode:  pick.problem.Code(),
			ProblemURL:   fmt.Sprintf("https://codeforces.com/problemset/problem/%d/%s", pick.problem.ContestID, pick.problem.Index),
			Points:       models.ProblemPoints[index],
			Division:     division,
		})
	}
	return selected, nil
}

func pickForIndex(primary, fallback []candidate, division int, band ratingBand) (candidate, bool) {
	if len(primary) > 0 {
		inBand := make([]candidate, 0, len(primary))
		for _, c := range primary {
			if c.inBand {
				inBand = append(inBand, c)
			}
		}
		pool := primary
		if len(inBand) > 0 {
			pool = inBand
		}
		return pool[rand.Intn(len(pool))], true
	}

	if len(fallback) == 0 {
		return candidate{}, false
	}
	// Fallback: any division, target division first, then closest to the
	// band midpoint.
	sorted := make([]candidate, len(fallback))
	copy(sorted, fallback)
	mid := band.midpoint()
	sort.SliceStable(sorted, func(i, j int) bool {
		di := sorted[i].division == division
		dj := sorted[j].division == division
		if di != dj {
			return di
		}
		return distance(float64(sorted[i].problem.Rating), mid) < distance(float64(sorted[j].problem.Rating), mid)
	})
	return sorted[0], true
}

func distance(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
