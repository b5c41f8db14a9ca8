package types

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// Address is the delivery destination supplied with a quote request.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// HasPostalCode reports whether a usable postal code is present.
func (a Address) HasPostalCode() bool {
	return strings.TrimSpace(a.PostalCode) != ""
}

// CountryCode returns the normalized ISO country code, defaulting to US.
func (a Address) CountryCode() string {
	country := strings.ToUpper(strings.TrimSpace(a.Country))
	if country == "" {
		return "US"
	}
	return country
}

// Value serializes the address to JSON for JSONB storage.
func (a *Address) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan decodes JSONB into the address struct.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, a)
}
