package instance

import "os"

// GetID identifies the running process in logs: an explicit WORKER_ID, the
// Cloud Run revision, or the host name.
func GetID() string {
	for _, key := range []string{"WORKER_ID", "K_REVISION", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
