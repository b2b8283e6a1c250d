package risk

// Rule tags. Each fired rule contributes a finding with one of these tags;
// they double as alert types downstream.
const (
	TagExceedsMax       = "exceeds_max"
	TagHighAmount       = "high_amount"
	TagUnusualTime      = "unusual_time"
	TagNewDevice        = "new_device"
	TagNewLocation      = "new_location"
	TagHighVelocity     = "high_velocity"
	TagImpossibleTravel = "impossible_travel"
)

// maxScore caps the additive anomaly score.
const maxScore = 100
