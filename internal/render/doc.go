// Package render runs one render job per unique digest on a bounded worker
// pool.
//
// Each job invokes the external renderer configured for its kind with the
// payload path and an artifact location keyed by digest. A job makes a
// single attempt; any failure (error, non-zero exit, timeout, panic) is
// caught at the job boundary and reported as a failed Result without
// affecting sibling jobs. Scheduler.Run returns only after every submitted
// job has finished.
package render
