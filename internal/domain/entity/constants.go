package entity

// Trip type constants for TripRequest
const (
	TripTypeRegular  = "Regular Trip"
	TripTypeAirport  = "Airport Transfer"
	TripTypeEmbassy  = "Embassy Visit"
	LocationOthers   = "Others"
	DepartureLayout  = "02/01/2006 15:04"
	FilterDateLayout = "2006-01-02"
)

var validTripTypes = map[string]bool{
	TripTypeRegular: true,
	TripTypeAirport: true,
	TripTypeEmbassy: true,
}

// IsValidTripType returns true if tripType is a known trip type
func IsValidTripType(tripType string) bool {
	return validTripTypes[tripType]
}
