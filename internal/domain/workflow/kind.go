package workflow

// Kind identifies which request record a transition applies to
type Kind string

const (
	KindTrip  Kind = "TRIP"
	KindRoute Kind = "ROUTE"
)

// IsValid returns true if the kind is known
func (k Kind) IsValid() bool {
	return k == KindTrip || k == KindRoute
}

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}
