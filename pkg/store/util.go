package store

import (
	"fmt"
	"strings"
	"time"
)

const resourceDeployments = "deployments"

// MakeKey creates the key of the latest record.
func MakeKey(environment, service string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", resourceDeployments, environment, service))
}

// MakePrefix creates a prefix for listing records of an environment.
func MakePrefix(environment string) []byte {
	if environment == "" || environment == "*" {
		return []byte(resourceDeployments + "/")
	}
	return []byte(fmt.Sprintf("%s/%s/", resourceDeployments, environment))
}

// MakeVersionKey creates the key of one history entry.
func MakeVersionKey(environment, service, version string) []byte {
	return []byte(fmt.Sprintf("%s-versions/%s/%s/%s", resourceDeployments, environment, service, version))
}

// MakeVersionPrefix creates a prefix for listing a record's history.
func MakeVersionPrefix(environment, service string) []byte {
	return []byte(fmt.Sprintf("%s-versions/%s/%s/", resourceDeployments, environment, service))
}

// newVersion returns a version identifier that sorts by time.
func newVersion(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func validateRecord(environment, service string) error {
	if environment == "" || service == "" {
		return fmt.Errorf("environment and service are required")
	}
	if strings.Contains(environment, "/") || strings.Contains(service, "/") {
		return fmt.Errorf("environment and service must not contain '/'")
	}
	return nil
}
