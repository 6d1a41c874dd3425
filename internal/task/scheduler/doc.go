// Package scheduler fires the daily trending post.
//
// A cron entry ticks every minute in the configured timezone. Each tick
// compares the wall clock with the post time and runs the job at most once
// per matching minute.
package scheduler
