package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	BusinessesChanged bool           // true if any business block changed
	BusinessChanges   []BusinessDiff // per-business diffs
	LogLevelChanged   bool
	NewLogLevel       LogLevel
}

// BusinessDiff describes what changed for a single business between two configs.
type BusinessDiff struct {
	ID              string
	PromptChanged   bool
	NumbersChanged  bool
	FeaturesChanged bool
	Added           bool
	Removed         bool
}

// Changed reports whether the diff records any modification.
func (d BusinessDiff) Changed() bool {
	return d.PromptChanged || d.NumbersChanged || d.FeaturesChanged || d.Added || d.Removed
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; in-flight calls
// keep the config they started with either way.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build business lookup maps keyed by ID.
	oldBiz := make(map[string]*BusinessConfig, len(old.Businesses))
	for i := range old.Businesses {
		oldBiz[old.Businesses[i].ID] = &old.Businesses[i]
	}
	newBiz := make(map[string]*BusinessConfig, len(new.Businesses))
	for i := range new.Businesses {
		newBiz[new.Businesses[i].ID] = &new.Businesses[i]
	}

	// Detect modified and removed businesses.
	for id, ob := range oldBiz {
		nb, exists := newBiz[id]
		if !exists {
			d.BusinessChanges = append(d.BusinessChanges, BusinessDiff{
				ID:      id,
				Removed: true,
			})
			d.BusinessesChanged = true
			continue
		}
		bd := diffBusiness(id, ob, nb)
		if bd.Changed() {
			d.BusinessChanges = append(d.BusinessChanges, bd)
			d.BusinessesChanged = true
		}
	}

	// Detect added businesses.
	for id := range newBiz {
		if _, exists := oldBiz[id]; !exists {
			d.BusinessChanges = append(d.BusinessChanges, BusinessDiff{
				ID:    id,
				Added: true,
			})
			d.BusinessesChanged = true
		}
	}

	return d
}

// diffBusiness compares two business configs with the same ID.
func diffBusiness(id string, old, new *BusinessConfig) BusinessDiff {
	bd := BusinessDiff{ID: id}

	if old.Prompt != new.Prompt || old.DisplayName != new.DisplayName {
		bd.PromptChanged = true
	}
	if !equalStrings(old.IncomingNumbers, new.IncomingNumbers) {
		bd.NumbersChanged = true
	}
	if old.Features != new.Features {
		bd.FeaturesChanged = true
	}

	return bd
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
