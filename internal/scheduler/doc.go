// Package scheduler admits export jobs under a global concurrency cap and
// a per-user cap. Pending jobs queue in submission order; admission scans
// that order and skips users already at their cap, so one user's backlog
// never starves another's single job. Finished slots are refilled
// immediately, and every terminal outcome is persisted through the store.
package scheduler
