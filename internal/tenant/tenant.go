// Package tenant defines the explicit tenant scope threaded through every
// repository call. There is no implicit query rewriting: a repository method
// that reads tenant-owned data takes a Tenant parameter.
package tenant

import "strings"

// Tenant identifies a country + business-unit scope.
type Tenant struct {
	CountryCode  string
	BusinessUnit string
}

// New normalizes and returns a tenant scope.
func New(countryCode, businessUnit string) Tenant {
	return Tenant{
		CountryCode:  strings.ToUpper(strings.TrimSpace(countryCode)),
		BusinessUnit: strings.ToUpper(strings.TrimSpace(businessUnit)),
	}
}

// String returns the label used in logs and correlation metadata.
func (t Tenant) String() string {
	return t.CountryCode + "/" + t.BusinessUnit
}

// IsZero reports whether the tenant scope is unset.
func (t Tenant) IsZero() bool {
	return t.CountryCode == "" && t.BusinessUnit == ""
}
