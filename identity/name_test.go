package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corda/ledgergate/errors"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Name
	}{
		{
			name:  "minimal required attributes",
			input: "O=PartyA,L=London,C=GB",
			want:  Name{Organisation: "PartyA", Locality: "London", Country: "GB"},
		},
		{
			name:  "whitespace tolerated",
			input: " O = PartyA , L = London , C = GB ",
			want:  Name{Organisation: "PartyA", Locality: "London", Country: "GB"},
		},
		{
			name:  "lowercase keys accepted",
			input: "o=PartyA,l=London,c=gb",
			want:  Name{Organisation: "PartyA", Locality: "London", Country: "gb"},
		},
		{
			name:  "all attributes",
			input: "CN=Trader Desk,OU=Ops,O=PartyB,L=New York,C=US",
			want: Name{
				CommonName:       "Trader Desk",
				OrganisationUnit: "Ops",
				Organisation:     "PartyB",
				Locality:         "New York",
				Country:          "US",
			},
		},
		{
			name:  "locality with spaces",
			input: "O=PartyB,L=New York,C=US",
			want:  Name{Organisation: "PartyB", Locality: "New York", Country: "US"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseName(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNameRejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"no equals sign", "PartyA"},
		{"missing organisation", "L=London,C=GB"},
		{"missing locality", "O=PartyA,C=GB"},
		{"missing country", "O=PartyA,L=London"},
		{"empty value", "O=,L=London,C=GB"},
		{"duplicate attribute", "O=PartyA,O=PartyB,L=London,C=GB"},
		{"unknown attribute", "O=PartyA,L=London,C=GB,X=what"},
		{"three letter country", "O=PartyA,L=London,C=GBR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseName(tt.input)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrMalformedName)
		})
	}
}

func TestNameString(t *testing.T) {
	name, err := ParseName("c=gb, l=London, o=PartyA")
	require.NoError(t, err)
	assert.Equal(t, "O=PartyA,L=London,C=GB", name.String(), "canonical order and uppercase country")

	full := Name{
		CommonName:       "Desk",
		OrganisationUnit: "Ops",
		Organisation:     "PartyB",
		Locality:         "New York",
		Country:          "US",
	}
	assert.Equal(t, "CN=Desk,OU=Ops,O=PartyB,L=New York,C=US", full.String())
}

func TestNameEquals(t *testing.T) {
	a, err := ParseName("O=PartyA,L=London,C=GB")
	require.NoError(t, err)
	b, err := ParseName("L=London, C=gb, O=PartyA")
	require.NoError(t, err)
	c, err := ParseName("O=PartyB,L=London,C=GB")
	require.NoError(t, err)

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}
