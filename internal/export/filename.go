package export

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleCaser returns a title caser for artifact names. cases.Caser is not
// safe for concurrent use, so each call builds its own.
func titleCaser() cases.Caser {
	return cases.Title(language.English, cases.NoLower)
}
