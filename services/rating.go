package services

import "math"

// DefaultKFactor is the Elo K-factor applied to every contest.
const DefaultKFactor = 32

// CalculateElo computes both players' new ratings and deltas from their
// current ratings and actual scores (1.0 win, 0.5 draw, 0.0 loss).
func CalculateElo(rating1, rating2 int, score1, score2 float64, kFactor int) (newRating1, newRating2, change1, change2 int) {
	expected1 := 1 / (1 + math.Pow(10, float64(rating2-rating1)/400))
	expected2 := 1 / (1 + math.Pow(10, float64(rating1-rating2)/400))

	newRating1 = int(math.Round(float64(rating1) + float64(kFactor)*(score1-expected1)))
	newRating2 = int(math.Round(float64(rating2) + float64(kFactor)*(score2-expected2)))

	return newRating1, newRating2, newRating1 - rating1, newRating2 - rating2
}

// ContestOutcome maps final point totals to Elo scores. Equal totals are a
// draw for rating purposes; tournament advancement breaks the tie separately.
func ContestOutcome(points1, points2 int) (score1, score2 float64) {
	switch {
	case points1 > points2:
		return 1.0, 0.0
	case points2 > points1:
		return 0.0, 1.0
	default:
		return 0.5, 0.5
	}
}
