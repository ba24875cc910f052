// Package notifications delivers terminal-outcome push notifications
// through ntfy, with a noop fallback when no topic is configured.
package notifications
