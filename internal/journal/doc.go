// Package journal persists finished job runs to SQLite so outcomes survive
// process restarts and can be listed or summarized later.
package journal
