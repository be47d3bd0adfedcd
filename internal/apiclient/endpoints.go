package apiclient

import (
	"fmt"
	"net/url"
)

// Complaint API routes, relative to the configured base URL.
const (
	pathLogin          = "/worker/login/"
	pathLogout         = "/worker/logout/"
	pathMe             = "/worker/me/"
	pathAssignments    = "/worker/assignments/"
	pathDashboardStats = "/worker/dashboard/stats/"
)

func complaintsBucketPath(bucket string) string {
	return fmt.Sprintf("/worker/complaints/%s/", url.PathEscape(bucket))
}

func complaintPath(id string) string {
	return fmt.Sprintf("/worker/complaints/%s/", url.PathEscape(id))
}

func completePath(id string) string {
	return fmt.Sprintf("/worker/complaints/%s/complete/", url.PathEscape(id))
}
