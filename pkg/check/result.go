package check

// Result captures the outcome of a single check within a round.
type Result struct {
	// Type is the check type name.
	Type string

	// Success indicates whether the check logged no errors.
	Success bool

	// Status is the first logged summary, or StatusPassed.
	Status string

	// Entries holds everything the check logged.
	Entries []Entry

	// Err holds the fatal error returned by the check, if any.
	Err error
}
