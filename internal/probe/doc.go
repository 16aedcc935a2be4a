// Package probe implements the checker side of the status pipeline: it
// probes HTTP targets and reports the results to a status API.
//
// The main components are:
//
//   - [Prober]: HTTP client wrapper that turns a request into a status
//   - [Runner]: registers one checker and probes it on an interval
//
// The swec-checker command is a thin CLI wrapper around [Runner].
package probe
