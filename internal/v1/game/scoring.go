package game

import (
	"sort"
	"unicode/utf8"

	"github.com/lexiclash/server/internal/v1/types"
)

// BaseScore is length minus one, floored at zero. Length counts runes so
// multi-byte scripts score the same as Latin.
func BaseScore(word string) int {
	n := utf8.RuneCountInString(word)
	if n <= 1 {
		return 0
	}
	return n - 1
}

// ComboBonus maps a streak level to its bonus. Linear, clamped to
// [0, MaxComboLevel].
func ComboBonus(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxComboLevel {
		return MaxComboLevel
	}
	return level
}

// WordScore is the stored score for an accepted word.
func WordScore(word string, comboLevel int) int {
	return BaseScore(word) + ComboBonus(comboLevel)
}

// CollapseDuplicates zeroes every validated word held by two or more
// players, deducting the lost points from Scores and flagging the details.
// Caller holds the room lock.
func CollapseDuplicates(r *Room) {
	holders := make(map[string][]types.ParticipantName)
	for name, details := range r.WordDetails {
		for _, d := range details {
			if d.Validated {
				holders[d.Word] = append(holders[d.Word], name)
			}
		}
	}

	for word, names := range holders {
		if len(names) < 2 {
			continue
		}
		for _, name := range names {
			for _, d := range r.WordDetails[name] {
				if d.Word == word && d.Validated && !d.IsDuplicate {
					d.IsDuplicate = true
					r.Scores[name] -= d.Score
					if r.Scores[name] < 0 {
						r.Scores[name] = 0
					}
					d.Score = 0
				}
			}
		}
	}
}

// RecomputeScores rebuilds Scores from WordDetails. Used after host
// adjudication flips Validated flags.
func RecomputeScores(r *Room) {
	for name := range r.Participants {
		total := 0
		for _, d := range r.WordDetails[name] {
			if d.Validated && !d.IsDuplicate {
				total += d.Score
			}
		}
		r.Scores[name] = total
	}
}

// FinalScore is one row of the end-of-round scoreboard.
type FinalScore struct {
	Name      types.ParticipantName `json:"name"`
	Score     int                   `json:"score"`
	WordCount int                   `json:"wordCount"`
	Longest   string                `json:"longestWord,omitempty"`
	Title     string                `json:"title,omitempty"`
}

// FinalScores produces the sorted scoreboard with per-player titles.
// Caller holds the room lock.
func FinalScores(r *Room) []FinalScore {
	rows := make([]FinalScore, 0, len(r.Participants))
	for name := range r.Participants {
		row := FinalScore{Name: name, Score: r.Scores[name]}
		for _, d := range r.WordDetails[name] {
			if !d.Validated || d.IsDuplicate {
				continue
			}
			row.WordCount++
			if utf8.RuneCountInString(d.Word) > utf8.RuneCountInString(row.Longest) {
				row.Longest = d.Word
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Name < rows[j].Name
	})
	assignTitles(rows)
	return rows
}

// assignTitles decorates the scoreboard. The top scorer, the most prolific,
// and the holder of the longest word each get a title; one player can hold
// several when they earned them all.
func assignTitles(rows []FinalScore) {
	if len(rows) == 0 {
		return
	}

	rows[0].Title = "Word Champion"

	bestCount, bestCountIdx := 0, -1
	bestLen, bestLenIdx := 0, -1
	for i, row := range rows {
		if row.WordCount > bestCount {
			bestCount, bestCountIdx = row.WordCount, i
		}
		if n := utf8.RuneCountInString(row.Longest); n > bestLen {
			bestLen, bestLenIdx = n, i
		}
	}
	if bestCountIdx > 0 && rows[bestCountIdx].Title == "" {
		rows[bestCountIdx].Title = "Prolific"
	}
	if bestLenIdx >= 0 && rows[bestLenIdx].Title == "" {
		rows[bestLenIdx].Title = "Lexicographer"
	}
}
