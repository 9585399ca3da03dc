// Package identity resolves human-readable counterparty names against the
// node's network map. Names follow the X.500 structured form used on the
// ledger network, e.g. "O=PartyB,L=New York,C=US".
package identity

import (
	"fmt"
	"strings"

	"github.com/corda/ledgergate/errors"
)

// Name is a structured X.500 distinguished name. Organisation, Locality and
// Country are required; CommonName and OrganisationUnit are optional.
type Name struct {
	CommonName       string
	OrganisationUnit string
	Organisation     string
	Locality         string
	Country          string
}

// ParseName parses the string form of a distinguished name. Malformed input
// fails fast with an invalid-classified error before any lookup happens.
func ParseName(s string) (Name, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Name{}, errors.WrapInvalid(errors.ErrMalformedName, "identity", "ParseName",
			"name is empty")
	}

	var name Name
	seen := make(map[string]bool)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, found := strings.Cut(part, "=")
		if !found {
			return Name{}, errors.WrapInvalid(errors.ErrMalformedName, "identity", "ParseName",
				fmt.Sprintf("attribute %q is not KEY=VALUE", part))
		}

		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			return Name{}, errors.WrapInvalid(errors.ErrMalformedName, "identity", "ParseName",
				fmt.Sprintf("attribute %s has empty value", key))
		}
		if seen[key] {
			return Name{}, errors.WrapInvalid(errors.ErrMalformedName, "identity", "ParseName",
				fmt.Sprintf("attribute %s appears twice", key))
		}
		seen[key] = true

		switch key {
		case "CN":
			name.CommonName = value
		case "OU":
			name.OrganisationUnit = value
		case "O":
			name.Organisation = value
		case "L":
			name.Locality = value
		case "C":
			name.Country = value
		default:
			return Name{}, errors.WrapInvalid(errors.ErrMalformedName, "identity", "ParseName",
				fmt.Sprintf("unknown attribute %s", key))
		}
	}

	if name.Organisation == "" || name.Locality == "" || name.Country == "" {
		return Name{}, errors.WrapInvalid(errors.ErrMalformedName, "identity", "ParseName",
			"O, L and C attributes are required")
	}
	if len(name.Country) != 2 {
		return Name{}, errors.WrapInvalid(errors.ErrMalformedName, "identity", "ParseName",
			fmt.Sprintf("country must be a two-letter code: %q", name.Country))
	}

	return name, nil
}

// String renders the canonical form. Attribute order is fixed so two names
// that parse equal also render equal.
func (n Name) String() string {
	parts := make([]string, 0, 5)
	if n.CommonName != "" {
		parts = append(parts, "CN="+n.CommonName)
	}
	if n.OrganisationUnit != "" {
		parts = append(parts, "OU="+n.OrganisationUnit)
	}
	parts = append(parts, "O="+n.Organisation, "L="+n.Locality, "C="+strings.ToUpper(n.Country))
	return strings.Join(parts, ",")
}

// Equals compares two names by canonical form
func (n Name) Equals(other Name) bool {
	return n.String() == other.String()
}
