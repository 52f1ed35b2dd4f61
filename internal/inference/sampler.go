package inference

import (
	"cmp"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
)

// ErrNoCandidates is returned when every candidate for the next position is banned.
var ErrNoCandidates = errors.New("no admissible next token")

// Sampler draws the next token from engine candidates. It is not safe for concurrent use.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a Sampler. A zero seed draws a random one.
func NewSampler(seed uint64) *Sampler {
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample applies, in order: the no-repeat n-gram ban over the whole sequence, temperature,
// top-k and nucleus filtering, then draws. Without sampling the most likely admissible
// candidate is returned.
func (s *Sampler) Sample(cands []Candidate, sequence []int, req GenerationRequest) (int, error) {
	banned := BannedTokens(sequence, req.NoRepeatNGramSize)

	pool := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := banned[c.ID]; ok || math.IsNaN(c.LogProb) || math.IsInf(c.LogProb, -1) {
			continue
		}
		pool = append(pool, c)
	}
	if len(pool) == 0 {
		return 0, ErrNoCandidates
	}

	slices.SortStableFunc(pool, func(a, b Candidate) int { return cmp.Compare(b.LogProb, a.LogProb) })

	if !req.DoSample {
		return pool[0].ID, nil
	}

	if req.TopK > 0 && len(pool) > req.TopK {
		pool = pool[:req.TopK]
	}

	probs := softmax(pool, req.Temperature)
	pool, probs = nucleus(pool, probs, req.TopP)

	r := s.rng.Float64() * sum(probs)
	for i, p := range probs {
		r -= p
		if r < 0 {
			return pool[i].ID, nil
		}
	}

	return pool[len(pool)-1].ID, nil
}

// BannedTokens returns the tokens that would complete an n-gram already present in sequence.
func BannedTokens(sequence []int, n int) map[int]struct{} {
	banned := map[int]struct{}{}
	if n <= 0 || len(sequence) < n {
		return banned
	}
	if n == 1 {
		for _, id := range sequence {
			banned[id] = struct{}{}
		}
		return banned
	}

	prefix := sequence[len(sequence)-(n-1):]
	for i := 0; i+n <= len(sequence); i++ {
		if slices.Equal(sequence[i:i+n-1], prefix) {
			banned[sequence[i+n-1]] = struct{}{}
		}
	}

	return banned
}

// softmax of logprob/temperature over pool, which is sorted highest first.
func softmax(pool []Candidate, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}

	maxLogit := pool[0].LogProb / temperature
	probs := make([]float64, len(pool))
	var total float64
	for i, c := range pool {
		probs[i] = math.Exp(c.LogProb/temperature - maxLogit)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}

	return probs
}

// nucleus keeps the smallest prefix whose cumulative probability reaches topP.
func nucleus(pool []Candidate, probs []float64, topP float64) ([]Candidate, []float64) {
	if topP <= 0 || topP >= 1 {
		return pool, probs
	}

	var cumulative float64
	for i, p := range probs {
		cumulative += p
		if cumulative >= topP {
			return pool[:i+1], probs[:i+1]
		}
	}

	return pool, probs
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}

	return total
}
