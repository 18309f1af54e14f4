package player

// Rand is the source of randomness used by shuffle. *math/rand.Rand
// satisfies it.
type Rand interface {
	Intn(n int) int
}

// shuffleAround returns a new order with tracks[current] first and the
// remaining tracks in a uniformly random permutation.
func shuffleAround(tracks []Track, current int, rng Rand) []Track {
	if len(tracks) == 0 {
		return nil
	}
	if current < 0 || current >= len(tracks) {
		current = 0
	}

	rest := make([]Track, 0, len(tracks)-1)
	rest = append(rest, tracks[:current]...)
	rest = append(rest, tracks[current+1:]...)

	// Fisher-Yates 洗牌算法
	for i := len(rest) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}

	out := make([]Track, 0, len(tracks))
	out = append(out, tracks[current])
	return append(out, rest...)
}

// indexOf returns the first index of the track with id, or -1.
func indexOf(tracks []Track, id string) int {
	for i := range tracks {
		if tracks[i].ID == id {
			return i
		}
	}
	return -1
}
