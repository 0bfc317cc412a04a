package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LookupByIdentifiers(t *testing.T) {
	table := Default()
	assert.Greater(t, table.Len(), 240)

	for _, id := range []string{"NL", "nl", " NLD ", "Netherlands", "kingdom of the netherlands"} {
		c, ok := table.Lookup(id)
		require.True(t, ok, "lookup %q", id)
		assert.Equal(t, "NL", c.Alpha2)
		assert.Equal(t, "NLD", c.Alpha3)
		assert.Equal(t, "Netherlands", c.Name)
		assert.Equal(t, "Kingdom of the Netherlands", c.Official())
		assert.Equal(t, "Europe", c.Continent)
	}
}

func TestDefault_Continents(t *testing.T) {
	tests := map[string]string{
		"US": "North America",
		"MX": "North America",
		"BR": "South America",
		"IN": "Asia",
		"NG": "Africa",
		"AU": "Oceania",
		"DE": "Europe",
	}
	for code, want := range tests {
		c, ok := Default().Lookup(code)
		require.True(t, ok, code)
		assert.Equal(t, want, c.Continent, code)
	}
}

func TestContinentOf(t *testing.T) {
	tests := []struct {
		region, subregion, want string
	}{
		{"Europe", "Western Europe", "Europe"},
		{"Americas", "South America", "South America"},
		{"Americas", "Caribbean", "North America"},
		{"Americas", "Central America", "North America"},
		{"Antarctic", "", "Antarctica"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, continentOf(tt.region, tt.subregion), "%s/%s", tt.region, tt.subregion)
	}
}

func TestCountry_OfficialFallsBackToName(t *testing.T) {
	c, ok := Default().Lookup("CA")
	require.True(t, ok)
	assert.Empty(t, c.OfficialName)
	assert.Equal(t, "Canada", c.Official())
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Default().Lookup("XX")
	assert.False(t, ok)
	_, ok = Default().Lookup("")
	assert.False(t, ok)
}

func TestNewTable_FirstEntryWins(t *testing.T) {
	table := NewTable([]Country{
		{Alpha2: "AA", Name: "Alpha", Continent: "Europe"},
		{Alpha2: "BB", Name: "alpha", Continent: "Asia"},
	})
	c, ok := table.Lookup("ALPHA")
	require.True(t, ok)
	assert.Equal(t, "AA", c.Alpha2)
}
