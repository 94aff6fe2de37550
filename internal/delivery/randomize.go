package delivery

import (
	"math/rand/v2"

	"github.com/pavelanni/edutest/internal/model"
)

// Present builds the per-attempt view of a test. The result depends only on the test and
// the seed. The test itself is not modified.
//
// With RandomizeQuestions the question sequence is shuffled. With RandomizeOptions each
// question gets its own shuffled permutation of option indices; options are reordered by it
// and the correct answer moves to wherever the authored correct index landed.
func Present(t model.Test, seed uint64) model.PresentedTest {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	order := identity(len(t.Questions))
	if t.RandomizeQuestions {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	presented := model.PresentedTest{
		TestID:    t.ID,
		Seed:      seed,
		Questions: make([]model.PresentedQuestion, len(order)),
	}
	for pos, idx := range order {
		q := t.Questions[idx]
		perm := identity(len(q.Options))
		if t.RandomizeOptions {
			rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		}
		options := make([]string, len(perm))
		for i, from := range perm {
			options[i] = q.Options[from]
		}
		presented.Questions[pos] = model.PresentedQuestion{
			Question: model.Question{
				ID:            q.ID,
				Text:          q.Text,
				Options:       options,
				CorrectAnswer: indexOf(perm, q.CorrectAnswer),
			},
			OptionOrder: perm,
		}
	}
	return presented
}

func identity(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
