package cache

import "strings"

// ReferencePaths are the API paths whose GET responses may be cached.
var ReferencePaths = []string{
	"/custom_field/",
	"/custom_object_type/",
	"/status/",
	"/pipeline/",
	"/me/",
	"/report/activity/metrics/",
	"/report/custom/fields/",
}

// ReferencePrefix returns the reference path that contains path.
func ReferencePrefix(path string) (string, bool) {
	for _, prefix := range ReferencePaths {
		if strings.HasPrefix(path, prefix) {
			return prefix, true
		}
	}
	return "", false
}
