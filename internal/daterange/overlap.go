package daterange

// Policy decides whether two ranges that touch on a single day conflict.
type Policy int

const (
	// PolicyInclusive treats both ends as occupied days, so a check-out and a
	// check-in on the same day conflict.
	PolicyInclusive Policy = iota
	// PolicySameDayTurnover frees the check-out day for the next guest.
	PolicySameDayTurnover
)

// DefaultPolicy is applied unless configuration enables same-day turnover.
const DefaultPolicy = PolicyInclusive

// PolicyFor maps the configuration flag to a policy.
func PolicyFor(allowSameDayTurnover bool) Policy {
	if allowSameDayTurnover {
		return PolicySameDayTurnover
	}
	return PolicyInclusive
}

func (p Policy) String() string {
	switch p {
	case PolicySameDayTurnover:
		return "same_day_turnover"
	default:
		return "inclusive"
	}
}

// Overlaps reports whether a and b share at least one day under the policy.
// The relation is symmetric.
func Overlaps(a, b Range, p Policy) bool {
	if p == PolicySameDayTurnover {
		return a.Start.Before(b.End) && a.End.After(b.Start)
	}
	return !a.Start.After(b.End) && !a.End.Before(b.Start)
}
