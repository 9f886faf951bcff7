package instance

import "os"

// GetID returns the worker instance identifier recorded as the run requester.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "dispatch-worker-0"
}
