// Package logging configures slog output for courier processes.
//
// Two handler formats are supported: a key=value console handler for
// interactive use and a JSON handler for log files and scraping. Both
// honor a shared level and can write to multiple destinations at once.
package logging
