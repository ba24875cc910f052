// Package runpod implements the HTTP transport for RunPod-style serverless
// endpoints.
//
// Every method performs exactly one network round trip; retry policy lives
// with the caller. Errors are tagged with ErrTransient or ErrAPI so callers
// can classify failures without inspecting HTTP details.
package runpod
