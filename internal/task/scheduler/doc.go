// Package scheduler triggers background jobs on cron specs or fixed
// intervals (robfig/cron).
//
// Jobs run on the cron goroutine pool with a per-job timeout. A job that
// is still running when its next trigger fires is skipped for that round.
package scheduler
