package session

import (
	"github.com/pavelanni/tutor/internal/model"
)

const (
	// Scores above raiseAbove move the student one band up.
	raiseAbove = 80
	// Scores below lowerBelow move the student one band down.
	lowerBelow = 50
)

var ladder = []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}

// NextDifficulty maps the current band and the latest score to the band of the
// next question. 50 and 80 both keep the current band. An out-of-range score
// returns ErrInvalidScore together with the unchanged band.
func NextDifficulty(current model.Difficulty, score int) (model.Difficulty, error) {
	idx := -1
	for i, d := range ladder {
		if d == current {
			idx = i
		}
	}
	if idx < 0 {
		return current, &model.InvalidValueError{Field: "difficulty", Value: string(current)}
	}
	if score < 0 || score > 100 {
		return current, &model.ScoreError{Score: score}
	}

	switch {
	case score > raiseAbove:
		idx = min(idx+1, len(ladder)-1)
	case score < lowerBelow:
		idx = max(idx-1, 0)
	}
	return ladder[idx], nil
}

// ScoreBand is the badge shown next to an evaluated answer.
type ScoreBand string

const (
	BandExcellent ScoreBand = "excellent"
	BandGood      ScoreBand = "good"
	BandNeedsWork ScoreBand = "needs_work"
)

// Band classifies a score for display.
func Band(score int) ScoreBand {
	switch {
	case score >= 80:
		return BandExcellent
	case score >= 60:
		return BandGood
	default:
		return BandNeedsWork
	}
}
