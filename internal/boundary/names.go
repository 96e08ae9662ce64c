package boundary

import (
	"strings"

	"github.com/biter777/countries"
)

// CountryName returns name when it is a real name, otherwise the English
// name of the ISO code, otherwise the code itself.
func CountryName(code, name string) string {
	if name != "" && !strings.EqualFold(name, code) {
		return name
	}
	if c := countries.ByName(strings.ToUpper(code)); c != countries.Unknown {
		return c.Info().Name
	}
	if name != "" {
		return name
	}
	return strings.ToUpper(code)
}
