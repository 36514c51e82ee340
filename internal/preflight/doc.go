// Package preflight provides readiness checks for external tools and
// filesystem paths that Cutroom depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to accept export jobs
//     while a required check fails.
//   - The CLI "cutroom status" command shows the same results so a failing
//     daemon can be diagnosed remotely.
package preflight
