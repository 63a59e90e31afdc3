package core

// Limits are the per-user resource ceilings enforced by the importer.
type Limits struct {
	MaxContacts      int     // stored records per user
	MaxRecordTokens  int     // estimated tokens per record
	ApproachingRatio float64 // share of MaxContacts that triggers a warning
}

// DefaultLimits are the production ceilings.
var DefaultLimits = Limits{
	MaxContacts:      10000,
	MaxRecordTokens:  500,
	ApproachingRatio: 0.9,
}

// CapacityStatus describes how full a user's contact list is.
type CapacityStatus struct {
	Count       int  `json:"count"`
	Max         int  `json:"max"`
	Available   int  `json:"available"`
	Approaching bool `json:"approaching"`
	AtLimit     bool `json:"atLimit"`
}

// Capacity evaluates count against the limits.
func (l Limits) Capacity(count int) CapacityStatus {
	available := max(l.MaxContacts-count, 0)
	return CapacityStatus{
		Count:       count,
		Max:         l.MaxContacts,
		Available:   available,
		Approaching: float64(count) >= float64(l.MaxContacts)*l.ApproachingRatio,
		AtLimit:     available == 0,
	}
}

// CheckCapacity returns a *ContactLimitError when storing incoming more
// contacts on top of current would exceed MaxContacts.
func (l Limits) CheckCapacity(current, incoming int) error {
	if current+incoming <= l.MaxContacts {
		return nil
	}
	return &ContactLimitError{
		Current:   current,
		Incoming:  incoming,
		Max:       l.MaxContacts,
		Available: max(l.MaxContacts-current, 0),
	}
}

// IsOversized reports whether c exceeds the per-record token ceiling and
// returns its estimated cost.
func (l Limits) IsOversized(c Contact) (bool, int) {
	tokens := EstimateValueTokens(c)
	return tokens > l.MaxRecordTokens, tokens
}
