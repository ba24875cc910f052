// Package jobs drives remote serverless jobs from submission to a terminal
// outcome.
//
// The package splits the lifecycle into small parts: a Registry tracks
// in-flight jobs and carries the cross-goroutine cancel flag, a Policy
// decides whether a transport failure is worth retrying, a Poller walks one
// job through the remote state machine, and Client ties them together
// behind a single blocking Run call. Each Run owns its poller; concurrent
// runs share nothing but the registry.
package jobs
