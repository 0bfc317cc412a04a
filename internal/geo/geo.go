// Package geo resolves upstream country identifiers to canonical country records.
package geo

import (
	"sort"
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
)

// Country is a canonical country record.
type Country struct {
	Alpha2       string
	Alpha3       string
	Name         string
	OfficialName string
	Continent    string
}

// Official returns the official name, falling back to the short name.
func (c Country) Official() string {
	if c.OfficialName == "" {
		return c.Name
	}
	return c.OfficialName
}

// Table is an immutable country lookup table. Lookups accept alpha-2,
// alpha-3, short or official names and ignore case and surrounding space.
type Table struct {
	countries []Country
	index     map[string]int
	fold      cases.Caser
	foldMu    sync.Mutex
}

// NewTable builds a lookup table from country records. Later records never
// shadow an identifier already claimed by an earlier one.
func NewTable(countries []Country) *Table {
	t := &Table{
		countries: countries,
		index:     make(map[string]int, len(countries)*4),
		fold:      cases.Fold(),
	}
	for i, c := range countries {
		for _, id := range []string{c.Alpha2, c.Alpha3, c.Name, c.OfficialName} {
			if id == "" {
				continue
			}
			k := t.key(id)
			if _, taken := t.index[k]; !taken {
				t.index[k] = i
			}
		}
	}
	return t
}

// FromGountries converts the ISO 3166-1 records of a gountries query into a
// table, ordered by alpha-2 code.
func FromGountries(q *gountries.Query) *Table {
	all := q.FindAllCountries()
	countries := make([]Country, 0, len(all))
	for _, c := range all {
		official := c.Name.Official
		if official == c.Name.Common {
			official = ""
		}
		countries = append(countries, Country{
			Alpha2:       strings.ToUpper(c.Codes.Alpha2),
			Alpha3:       strings.ToUpper(c.Codes.Alpha3),
			Name:         c.Name.Common,
			OfficialName: official,
			Continent:    continentOf(c.Geo.Region, c.Geo.SubRegion),
		})
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Alpha2 < countries[j].Alpha2 })
	return NewTable(countries)
}

// continentOf maps a UN geoscheme region onto the seven-continent model. The
// Americas split on the South America subregion; everything else in the
// Americas is North America.
func continentOf(region, subregion string) string {
	switch region {
	case "Africa", "Asia", "Europe", "Oceania":
		return region
	case "Americas":
		if subregion == "South America" {
			return "South America"
		}
		return "North America"
	case "Antarctic", "Antarctica":
		return "Antarctica"
	default:
		return ""
	}
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in ISO 3166-1 table.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = FromGountries(gountries.New())
	})
	return defaultTable
}

// Lookup resolves any supported identifier to a country.
func (t *Table) Lookup(id string) (Country, bool) {
	i, ok := t.index[t.key(id)]
	if !ok {
		return Country{}, false
	}
	return t.countries[i], true
}

// Len returns the number of countries in the table.
func (t *Table) Len() int {
	return len(t.countries)
}

func (t *Table) key(id string) string {
	// cases.Caser carries state and is not safe for concurrent use
	t.foldMu.Lock()
	defer t.foldMu.Unlock()
	return t.fold.String(strings.TrimSpace(id))
}
