package planner

// Preference is the caller's trade-off between travel time and greenness.
// Weights are non-negative and sum to 1.
type Preference struct {
	Time  float64 `json:"time"`
	Green float64 `json:"green"`
}

// DefaultPreference is an even split.
func DefaultPreference() Preference {
	return Preference{Time: 0.5, Green: 0.5}
}

// Strategy defines one walking-candidate generation strategy. Each strategy
// maps the caller's preference to the edge-cost weights it solves with.
type Strategy interface {
	Name() string
	Weights(user Preference) Preference
}

// UserStrategy solves with the caller's own weights.
type UserStrategy struct{}

func (s *UserStrategy) Name() string { return "user" }

func (s *UserStrategy) Weights(user Preference) Preference {
	return user
}

// ASAPStrategy ignores greenness entirely and minimizes distance.
type ASAPStrategy struct{}

func (s *ASAPStrategy) Name() string { return "asap" }

func (s *ASAPStrategy) Weights(Preference) Preference {
	return Preference{Time: 1, Green: 0}
}

// GROOTStrategy maximizes greenness regardless of distance.
type GROOTStrategy struct{}

func (s *GROOTStrategy) Name() string { return "groot" }

func (s *GROOTStrategy) Weights(Preference) Preference {
	return Preference{Time: 0, Green: 1}
}

// AllStrategies returns the walking strategies in dedup priority order:
// a duplicate path survives under the earliest strategy that produced it.
func AllStrategies() []Strategy {
	return []Strategy{
		&UserStrategy{},
		&ASAPStrategy{},
		&GROOTStrategy{},
	}
}
