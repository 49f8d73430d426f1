package availability

// State is the tri-state availability of one datacenter for a given
// plan/option fingerprint (spec.md §3's AvailabilityReading / §4.4).
type State string

const (
	Available   State = "available"
	Unavailable State = "unavailable"
	Unknown     State = "unknown"
)

// bucketToState maps OVH's free-text availability bucket to a boolean
// available/unavailable state (spec.md §4.4): available unless the bucket is
// "unavailable", "unknown", or empty.
func bucketToState(bucket string) State {
	switch bucket {
	case "unavailable", "unknown", "":
		return Unavailable
	default:
		return Available
	}
}
