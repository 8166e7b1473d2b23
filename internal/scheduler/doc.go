// Package scheduler drives an experiment to completion by polling its
// platforms on a fixed interval.
//
// # Why Scheduler Exists
//
// Jobs of an experiment run on remote batch systems that only answer status
// queries. Something has to ask every platform what happened, turn the
// answers into job state, decide which jobs may go next and hand them out,
// without ever letting two of those steps interleave.
//
// # How It Works
//
// Every tick runs, in order:
//  1. Poll each platform once per remote id that still owns jobs. Ids that
//     belong to a wrapper go through the wrapper; the rest through the job.
//  2. Apply retries, synchronization and promotion (JobList.UpdateList).
//  3. Package the READY jobs of each platform within its queue limits and
//     submit the packages, one goroutine per platform.
//  4. Save a snapshot when anything changed.
//  5. Publish one event per status change.
//
// Ticks hold the scheduler's write lock. Readers use View.
package scheduler
