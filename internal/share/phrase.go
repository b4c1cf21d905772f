package share

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// words has 256 entries, so each word adds 8 bits to a phrase.
var words = []string{
	"amber", "anchor", "atlas", "aurora", "bamboo", "harbor", "basil", "beacon",
	"breeze", "canyon", "cedar", "citrus", "cobalt", "compass", "coral", "cypress",
	"delta", "dune", "ember", "fjord", "garden", "glacier", "granite", "grove",
	"horizon", "island", "jasmine", "juniper", "lagoon", "lantern", "laurel", "lemon",
	"maple", "marina", "meadow", "mesa", "monsoon", "olive", "orchid", "pebble",
	"pine", "plateau", "quartz", "rapids", "reef", "river", "saffron", "sage",
	"savanna", "sierra", "summit", "tamarind", "terrace", "thistle", "tide", "tundra",
	"valley", "velvet", "vista", "willow", "winter", "yonder", "zenith", "zephyr",
	"acorn", "alpine", "apricot", "arbor", "aspen", "autumn", "badger", "bayou",
	"birch", "bison", "bluff", "boulder", "bramble", "brook", "cactus", "caravan",
	"cascade", "castle", "cavern", "chestnut", "cinder", "clover", "comet", "copper",
	"cottage", "crater", "creek", "crest", "crystal", "dawn", "desert", "dolphin",
	"drift", "eagle", "echo", "elm", "estuary", "falcon", "fern", "fig",
	"firefly", "flint", "forest", "fountain", "fox", "frost", "galaxy", "gazelle",
	"geyser", "ginger", "gull", "hazel", "heather", "heron", "hickory", "highland",
	"hollow", "honey", "iris", "ivory", "ivy", "jade", "jaguar", "jetty",
	"kelp", "kestrel", "kite", "koala", "lake", "lark", "lava", "lilac",
	"lily", "linden", "lotus", "lynx", "magnolia", "mango", "mantis", "marble",
	"marsh", "meteor", "mint", "mist", "moss", "mountain", "nectar", "nebula",
	"nutmeg", "oak", "oasis", "ocean", "onyx", "opal", "orbit", "otter",
	"owl", "palm", "panda", "papaya", "pasture", "peach", "pearl", "pelican",
	"pepper", "petal", "pier", "plum", "pond", "poppy", "prairie", "puffin",
	"quail", "rain", "raven", "redwood", "ridge", "robin", "rose", "ruby",
	"sable", "salmon", "sand", "sapphire", "sequoia", "shore", "silver", "slate",
	"snow", "solstice", "sparrow", "spruce", "star", "stone", "storm", "sunset",
	"swan", "tangerine", "teal", "thunder", "tiger", "timber", "topaz", "trail",
	"tulip", "turtle", "umber", "vanilla", "violet", "volcano", "walnut", "wave",
	"whale", "wheat", "wren", "yarrow", "yew", "zinnia", "orca", "lichen",
	"bay", "cliff", "cove", "glade", "knoll", "loch", "moor", "peak",
	"rivulet", "shoal", "spire", "steppe", "strait", "summer", "tarn", "veld",
	"almond", "antler", "breaker", "bronze", "cairn", "canoe", "cheetah", "cliffside",
	"condor", "dahlia", "ferry", "gecko", "hammock", "hibiscus", "ibis", "iguana",
}

const (
	phraseWords  = 5
	phraseDigits = 1000000
)

var phrasePattern = regexp.MustCompile(`^([a-z]+-){5}[0-9]{6}$`)

// NewPhrase returns a random phrase such as
// "coral-summit-willow-otter-fjord-482193". Five words and six digits give
// about 60 bits.
func NewPhrase() (string, error) {
	parts := make([]string, 0, phraseWords+1)
	for i := 0; i < phraseWords; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
		if err != nil {
			return "", err
		}
		parts = append(parts, words[n.Int64()])
	}
	num, err := rand.Int(rand.Reader, big.NewInt(phraseDigits))
	if err != nil {
		return "", err
	}
	parts = append(parts, fmt.Sprintf("%06d", num.Int64()))
	return strings.Join(parts, "-"), nil
}

// ValidPhrase reports whether s has the shape of a share phrase.
func ValidPhrase(s string) bool {
	return phrasePattern.MatchString(s)
}
