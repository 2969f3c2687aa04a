package league

import "fmt"

// Format describes the size of one season of a competition.
type Format struct {
	Teams   int  `json:"teams"`
	Matches int  `json:"matches"`
	Cup     bool `json:"cup"`
}

var (
	EnglandPremier    = Competition{Region: "england", Name: "premier"}
	GermanyBundesliga = Competition{Region: "germany", Name: "bundesliga"}
	EuropeChampions   = Competition{Region: "europe", Name: "champions"}
)

// Formats maps competitions to their season format. The Champions League
// entry counts 8 groups of 12 matches plus 29 knockout matches.
type Formats map[Competition]Format

// DefaultFormats returns the built-in competition formats.
func DefaultFormats() Formats {
	return Formats{
		EnglandPremier:    {Teams: 20, Matches: 38 * 10},
		GermanyBundesliga: {Teams: 18, Matches: 34 * 9},
		EuropeChampions:   {Teams: 32, Matches: 8*12 + 16 + 8 + 4 + 1, Cup: true},
	}
}

// Lookup returns the format of a competition.
func (f Formats) Lookup(c Competition) (Format, error) {
	format, ok := f[c]
	if !ok {
		return Format{}, fmt.Errorf("%w: no format for %s", ErrUnsupported, c)
	}
	return format, nil
}

// IsCup reports whether c is played as groups followed by knockout rounds.
func (f Formats) IsCup(c Competition) bool {
	return f[c].Cup
}
