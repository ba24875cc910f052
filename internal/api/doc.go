// Package api defines the JSON types shared by the courierd HTTP API and
// its clients.
package api
