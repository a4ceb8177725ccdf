package models

// Record maps target field keys to typed values. Before relationship
// resolution it is a transformed record; afterwards lookup fields are
// replaced by foreign keys and the tenant id is set.
type Record map[string]Value

// Clone returns a shallow copy; Values are immutable so this is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text returns the string form of a string or enum field.
func (r Record) Text(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	s, _ := v.Str()
	return s
}

// Native converts the record to the plain map handed to stores.
func (r Record) Native() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Native()
	}
	return out
}

// StepRole tells the executor what a step in a work unit stands for.
type StepRole string

const (
	RolePrimary  StepRole = "primary"
	RoleTask     StepRole = "task"
	RoleSchedule StepRole = "schedule"
	RoleFollowUp StepRole = "follow-up"
)

// Step is one insert inside a WorkUnit. Links name fields that receive the
// id created by an earlier step of the same unit (field -> step index).
// A step with ReuseOn takes the id of an existing record whose ReuseOn
// fields all equal its own (an absent field only matches an absent field)
// instead of inserting a new one.
type Step struct {
	Entity  EntityType
	Role    StepRole
	Record  Record
	Links   map[string]int
	ReuseOn []string
}

// Reusable reports whether the step may take an existing record's id.
func (s Step) Reusable() bool { return len(s.ReuseOn) > 0 }

// WorkUnit is everything a single source row turns into. Steps[0] is the
// primary record; the rest are derived from it.
type WorkUnit struct {
	Row   int
	Steps []Step
}

// Primary returns the primary step.
func (u WorkUnit) Primary() Step { return u.Steps[0] }

// DerivedEntitySet groups derived records by tier: retained and follow-up
// work orders, task templates and recurring schedules.
type DerivedEntitySet struct {
	Primary   []Record
	Secondary []Record
	Tertiary  []Record
}

// SetOf flattens work units into their derived tiers.
func SetOf(units []WorkUnit) DerivedEntitySet {
	var set DerivedEntitySet
	for _, u := range units {
		for _, s := range u.Steps {
			switch s.Role {
			case RolePrimary, RoleFollowUp:
				set.Primary = append(set.Primary, s.Record)
			case RoleTask:
				set.Secondary = append(set.Secondary, s.Record)
			case RoleSchedule:
				set.Tertiary = append(set.Tertiary, s.Record)
			}
		}
	}
	return set
}
