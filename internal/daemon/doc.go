// Package daemon runs the background job service: it enforces
// single-instance execution, owns the shared job facade, and serves the
// HTTP control API.
package daemon
