package config

import "sort"

// Profile bundles threshold overrides for a risk appetite.
type Profile struct {
	EscalateThreshold   float64
	VerifyThreshold     float64
	FastPathThreshold   float64
	MinDataConfidence   float64
	StallThreshold      int
	CautiousConfidence  float64
	FastTrackConfidence float64
}

// Profiles contains the predefined behavior profiles.
var Profiles = map[string]Profile{
	"strict": {
		EscalateThreshold:   0.4,
		VerifyThreshold:     0.7,
		FastPathThreshold:   0.95,
		MinDataConfidence:   0.7,
		StallThreshold:      2,
		CautiousConfidence:  0.5,
		FastTrackConfidence: 0.95,
	},
	"balanced": {
		EscalateThreshold:   DefaultEscalateThreshold,
		VerifyThreshold:     DefaultVerifyThreshold,
		FastPathThreshold:   DefaultFastPathThreshold,
		MinDataConfidence:   DefaultMinDataConfidence,
		StallThreshold:      DefaultStallThreshold,
		CautiousConfidence:  DefaultCautiousConfidence,
		FastTrackConfidence: DefaultFastTrackConfidence,
	},
	"permissive": {
		EscalateThreshold:   0.2,
		VerifyThreshold:     0.5,
		FastPathThreshold:   0.75,
		MinDataConfidence:   0.4,
		StallThreshold:      5,
		CautiousConfidence:  0.3,
		FastTrackConfidence: 0.75,
	},
}

// ApplyProfile applies a named profile to the config.
// Returns false if the profile is not known.
func (c *Config) ApplyProfile(name string) bool {
	p, ok := Profiles[name]
	if !ok {
		return false
	}

	c.Confidence.EscalateThreshold = p.EscalateThreshold
	c.Confidence.VerifyThreshold = p.VerifyThreshold
	c.Confidence.FastPathThreshold = p.FastPathThreshold
	c.Gate.MinDataConfidence = p.MinDataConfidence
	c.Reflection.StallThreshold = p.StallThreshold
	c.Orchestrator.CautiousConfidence = p.CautiousConfidence
	c.Orchestrator.FastTrackConfidence = p.FastTrackConfidence
	c.Profile = name
	return true
}

// ListProfiles returns all profile names, sorted.
func ListProfiles() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
