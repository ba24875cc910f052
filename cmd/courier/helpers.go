package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"courier/internal/jobs"
)

func readAllStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func retryPolicy(maxAttempts, delaySeconds int) jobs.Policy {
	return jobs.Policy{
		MaxAttempts: maxAttempts,
		Delay:       time.Duration(delaySeconds) * time.Second,
	}
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
