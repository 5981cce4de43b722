package tts

import (
	"math/rand"
	"strings"
)

var (
	idAdjectives = []string{
		"amber", "bold", "brave", "bright", "calm", "clever", "cool", "crisp",
		"curly", "dry", "eager", "early", "fancy", "fast", "fluffy", "gentle",
		"giant", "golden", "happy", "honest", "huge", "jolly", "kind", "late",
		"lazy", "little", "lucky", "mighty", "modern", "noisy", "odd", "plain",
		"polite", "proud", "quick", "quiet", "rare", "red", "rich", "rotten",
		"shiny", "silent", "silly", "slow", "smart", "soft", "spicy", "swift",
		"tall", "tame", "tidy", "tiny", "warm", "wet", "wild", "wise", "young", "zany",
	}
	idNouns = []string{
		"ant", "badger", "bat", "bear", "bee", "bird", "camel", "cat",
		"cobra", "crab", "crow", "deer", "dog", "dolphin", "duck", "eagle",
		"eel", "falcon", "fish", "fox", "frog", "goat", "goose", "hawk",
		"horse", "jellyfish", "kangaroo", "koala", "lamb", "lion", "lizard", "llama",
		"mole", "moose", "mouse", "newt", "otter", "owl", "panda", "parrot",
		"penguin", "pig", "pony", "rabbit", "rat", "robin", "seal", "shark",
		"sheep", "snail", "snake", "swan", "tiger", "toad", "turkey", "walrus",
		"whale", "wolf", "yak", "zebra",
	}
)

// NewContextID 生成形如 "quick-silent-otter" 的可读上下文 ID。
// 熵有限，不适合用作安全凭据或主键。
func NewContextID() string {
	parts := []string{
		idAdjectives[rand.Intn(len(idAdjectives))],
		idAdjectives[rand.Intn(len(idAdjectives))],
		idNouns[rand.Intn(len(idNouns))],
	}
	return strings.Join(parts, "-")
}
