// Package residents ties a booking guest to an apartment of the cooperative.
//
// Resolution precedence, first match wins:
//
//  1. email   - guest email equals a resident's primary email (case-insensitive)
//  2. name    - the resident names contain the guest's full name
//  3. token   - any word of the guest name longer than two letters appears in the resident names
//  4. notes   - an apartment reference such as "lgh 12" or "lägenhet B" in the booking notes or name
//  5. unresolved
//
// Only active directory entries take part, scanned in apartment-number order.
package residents

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"gastbokning/internal/models"
)

// Method names the rule that produced a resolution.
type Method string

const (
	MethodEmail      Method = "email"
	MethodName       Method = "name"
	MethodToken      Method = "token"
	MethodNotes      Method = "notes"
	MethodUnresolved Method = "unresolved"
)

// Guest is the identity taken from a booking.
type Guest struct {
	Name  string
	Email string
	Notes string
}

// GuestOf extracts the identity fields of a booking.
func GuestOf(b *models.Booking) Guest {
	return Guest{Name: b.GuestName, Email: b.GuestEmail, Notes: b.Notes}
}

// Resolution is the outcome of resolving a guest.
type Resolution struct {
	Apartment string
	Method    Method
	// Resident is the matched directory entry; nil for notes matches that
	// name no known apartment, and for unresolved guests.
	Resident *models.Resident
}

// Resolved reports whether an apartment was found.
func (r Resolution) Resolved() bool {
	return r.Method != MethodUnresolved
}

// Resolver resolves guests against one directory snapshot.
type Resolver struct {
	entries []entry
}

type entry struct {
	resident models.Resident
	email    string
	names    string
	number   string
	code     string
}

// NewResolver indexes the active entries of a directory snapshot.
func NewResolver(directory []models.Resident) *Resolver {
	active := models.ActiveResidents(directory)
	entries := make([]entry, 0, len(active))
	for _, r := range active {
		entries = append(entries, entry{
			resident: r,
			email:    normalize(r.PrimaryEmail),
			names:    normalize(r.ResidentNames),
			number:   compact(r.ApartmentNumber),
			code:     compact(r.ApartmentCode),
		})
	}
	return &Resolver{entries: entries}
}

// Resolve applies the precedence rules to a guest.
func (r *Resolver) Resolve(g Guest) Resolution {
	if res, ok := r.byEmail(g.Email); ok {
		return res
	}
	name := normalize(g.Name)
	if res, ok := r.byName(name); ok {
		return res
	}
	if res, ok := r.byToken(name); ok {
		return res
	}
	for _, text := range []string{g.Notes, g.Name} {
		if res, ok := r.byNotes(text); ok {
			return res
		}
	}
	return Resolution{Apartment: models.UnresolvedApartment, Method: MethodUnresolved}
}

func (r *Resolver) byEmail(email string) (Resolution, bool) {
	email = normalize(email)
	if email == "" {
		return Resolution{}, false
	}
	for i := range r.entries {
		if r.entries[i].email != "" && r.entries[i].email == email {
			return r.resolution(i, MethodEmail), true
		}
	}
	return Resolution{}, false
}

func (r *Resolver) byName(name string) (Resolution, bool) {
	if name == "" {
		return Resolution{}, false
	}
	for i := range r.entries {
		if strings.Contains(r.entries[i].names, name) {
			return r.resolution(i, MethodName), true
		}
	}
	return Resolution{}, false
}

func (r *Resolver) byToken(name string) (Resolution, bool) {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return Resolution{}, false
	}
	for i := range r.entries {
		for _, tok := range tokens {
			if strings.Contains(r.entries[i].names, tok) {
				return r.resolution(i, MethodToken), true
			}
		}
	}
	return Resolution{}, false
}

var apartmentRef = regexp.MustCompile(`(?i)\b(?:lgh|lägenhet|lägenheten|apartment|apt)\.?\s*(?:nr\.?\s*)?([0-9]+\s?[a-z]?|[a-z])\b`)

func (r *Resolver) byNotes(text string) (Resolution, bool) {
	m := apartmentRef.FindStringSubmatch(text)
	if m == nil {
		return Resolution{}, false
	}
	token := strings.ToUpper(compact(m[1]))
	for i := range r.entries {
		e := &r.entries[i]
		if strings.EqualFold(token, e.number) || strings.EqualFold(token, e.code) ||
			strings.EqualFold(token, leadingNumber(e.number)) {
			return r.resolution(i, MethodNotes), true
		}
	}
	return Resolution{Apartment: token, Method: MethodNotes}, true
}

func (r *Resolver) resolution(i int, m Method) Resolution {
	res := r.entries[i].resident
	return Resolution{Apartment: res.ApartmentNumber, Method: m, Resident: &res}
}

// nameTokens splits a normalized name into words longer than two letters.
func nameTokens(name string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-' || r == '.' || r == '(' || r == ')'
	}) {
		if utf8.RuneCountInString(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func leadingNumber(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		return s
	}
	return s[:end]
}
