package utils

import (
	"math/rand"
	"sync"
)

// RandomStringGenerator produces short ids used to tag per-connection log lines.
type RandomStringGenerator struct {
	mut sync.Mutex
	gen *rand.Rand
}

func CreateRandomstringGenerator(seed int64) *RandomStringGenerator {
	return &RandomStringGenerator{
		mut: sync.Mutex{},
		gen: rand.New(rand.NewSource(seed)),
	}
}

var letters = []rune("123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ")

func (g *RandomStringGenerator) GetRandomString(n int) string {
	g.mut.Lock()
	defer g.mut.Unlock()

	b := make([]rune, n)
	for i := range b {
		b[i] = letters[g.gen.Intn(len(letters))]
	}
	return string(b)
}

func Contains(needle string, haystack []string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
