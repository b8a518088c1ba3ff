// Package viseme defines the mouth-shape labels used for 2D lip-sync and the
// static phoneme -> viseme table.
package viseme

import "sort"

// Viseme is a mouth-shape label understood by the 2D animation rig
type Viseme string

const (
	MouthOpen   Viseme = "mouth_open"   // a
	Smile       Viseme = "smile"        // e
	NarrowSmile Viseme = "narrow_smile" // i
	RoundOpen   Viseme = "round_open"   // o
	Pucker      Viseme = "pucker"       // u
	Closed      Viseme = "closed"       // m
	POutward    Viseme = "p_outward"    // p
	TeethUpper  Viseme = "teeth_upper"  // f
	TeethOpen   Viseme = "teeth_open"   // s
	FlatOpen    Viseme = "flat_open"    // t

	// Neutral is used for every phoneme the table does not know.
	Neutral Viseme = "neutral"
)

// table maps whole phoneme symbols to visemes. It is never modified.
var table = map[string]Viseme{
	"a": MouthOpen,
	"e": Smile,
	"i": NarrowSmile,
	"o": RoundOpen,
	"u": Pucker,
	"m": Closed,
	"p": POutward,
	"f": TeethUpper,
	"s": TeethOpen,
	"t": FlatOpen,
}

// Cue is a single viseme with its timing, in milliseconds from the start of
// the audio clip.
type Cue struct {
	Viseme    Viseme  `json:"viseme" yaml:"viseme"`
	StartTime float64 `json:"start_time" yaml:"start_time"`
	EndTime   float64 `json:"end_time" yaml:"end_time"`
}

// Lookup returns the viseme for a phoneme symbol. The symbol must match a
// table key exactly; anything else yields Neutral and known == false.
func Lookup(phoneme string) (v Viseme, known bool) {
	v, known = table[phoneme]
	if !known {
		return Neutral, false
	}
	return v, true
}

// For is Lookup without the known flag
func For(phoneme string) Viseme {
	v, _ := Lookup(phoneme)
	return v
}

// Mapping is one row of the viseme table
type Mapping struct {
	Phoneme string
	Viseme  Viseme
}

// Table returns a copy of the viseme table sorted by phoneme symbol.
func Table() []Mapping {
	rows := make([]Mapping, 0, len(table))
	for p, v := range table {
		rows = append(rows, Mapping{Phoneme: p, Viseme: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Phoneme < rows[j].Phoneme })
	return rows
}
