package models

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// UnresolvedApartment marks a line item whose guest could not be tied to an apartment.
const UnresolvedApartment = "UNRESOLVED"

// Resident is one entry of the cooperative's resident directory.
type Resident struct {
	ApartmentNumber string `json:"apartmentNumber"`
	ApartmentCode   string `json:"apartmentCode,omitempty"`
	ResidentNames   string `json:"residentNames"`
	Phone           string `json:"phone,omitempty"`
	PrimaryEmail    string `json:"primaryEmail,omitempty"`
	ParkingSpace    string `json:"parkingSpace,omitempty"`
	StorageSpace    string `json:"storageSpace,omitempty"`
	IsActive        bool   `json:"isActive"`
}

// ActiveResidents returns the active entries sorted by apartment number.
func ActiveResidents(all []Resident) []Resident {
	out := make([]Resident, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	SortResidents(out)
	return out
}

// SortResidents orders entries numerically by the leading number of the
// apartment identifier; entries without one go last, then by string.
func SortResidents(rs []Resident) {
	sort.SliceStable(rs, func(i, j int) bool {
		ni, nj := apartmentOrdinal(rs[i].ApartmentNumber), apartmentOrdinal(rs[j].ApartmentNumber)
		if ni != nj {
			return ni < nj
		}
		return rs[i].ApartmentNumber < rs[j].ApartmentNumber
	})
}

const noOrdinal = 1 << 30

func apartmentOrdinal(s string) int {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return noOrdinal
	}
	return n
}
