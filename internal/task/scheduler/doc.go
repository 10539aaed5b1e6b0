// Package scheduler owns named recurring triggers (daily, cron, interval).
//
// It only triggers. A fired trigger becomes an engine.Task on the task
// engine queue, so slow jobs never hold up the cron goroutine.
//
// Each name maps to at most one live trigger. Re-adding a name supersedes
// the old trigger; a superseded trigger that is already due or queued is
// discarded rather than run. Daily and cron triggers that fire later than
// the misfire grace after their planned instant are dropped.
package scheduler
