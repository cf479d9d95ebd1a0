// Package preflight provides readiness checks for the external programs,
// credentials, services, and filesystem paths QuickView depends on.
//
// `quickview doctor` runs RunAll and prints each result. Individual checks
// are exported so commands can verify just what they need before starting,
// for example the binaries before a batch.
package preflight
