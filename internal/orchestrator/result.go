package orchestrator

// Counts tallies terminal task states.
type Counts struct {
	Skipped      int
	Succeeded    int
	Failed       int
	NotAttempted int
}

// Total is the number of tasks counted.
func (c Counts) Total() int {
	return c.Skipped + c.Succeeded + c.Failed + c.NotAttempted
}

// Result is the outcome of a Run.
type Result struct {
	// Records holds one record per shard in the order the shards were given.
	Records []*TaskRecord
	// Aborted is true if the circuit breaker tripped during the run.
	Aborted bool
}

func (r *Result) Counts() Counts {
	var c Counts
	for _, rec := range r.Records {
		switch rec.State {
		case Done:
			c.Succeeded++
		case Skipped:
			c.Skipped++
		case Failed:
			c.Failed++
		case NotAttempted:
			c.NotAttempted++
		}
	}
	return c
}

// OutputPaths lists the output of every shard that is present after the run.
func (r *Result) OutputPaths() []string {
	var paths []string
	for _, rec := range r.Records {
		if rec.State == Done || rec.State == Skipped {
			paths = append(paths, rec.OutputPath)
		}
	}
	return paths
}

// Failures returns the failed records in shard order.
func (r *Result) Failures() []*TaskRecord {
	var failed []*TaskRecord
	for _, rec := range r.Records {
		if rec.State == Failed {
			failed = append(failed, rec)
		}
	}
	return failed
}
