package study

import (
	"math/rand"
)

// distractorPool is the fixed set of Korean syllables a wrong choice is drawn
// from. The pool is static so a session offline on first run still gets
// plausible choices.
var distractorPool = []string{
	"가", "나", "다", "라", "마", "바", "사", "아",
	"자", "차", "카", "타", "파", "하", "거", "너",
	"더", "러", "머", "버", "서", "어", "저", "허",
}

// firstSyllable returns the first rune of meaning, the correct choice.
func firstSyllable(meaning string) string {
	for _, r := range meaning {
		return string(r)
	}
	return ""
}

// buildChoices returns the two shuffled choices for meaning and the index of
// the correct one.
func buildChoices(rng *rand.Rand, meaning string) ([2]string, int) {
	correct := firstSyllable(meaning)
	distractor := distractorPool[rng.Intn(len(distractorPool))]
	for distractor == correct {
		distractor = distractorPool[rng.Intn(len(distractorPool))]
	}

	if rng.Intn(2) == 0 {
		return [2]string{correct, distractor}, 0
	}
	return [2]string{distractor, correct}, 1
}
