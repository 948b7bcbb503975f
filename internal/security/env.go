package security

import "strings"

// sensitiveEnvExact are variables read by restic or its storage backends
// that hold credentials.
var sensitiveEnvExact = map[string]struct{}{
	"RESTIC_PASSWORD":                  {},
	"RESTIC_REST_PASSWORD":             {},
	"AWS_SECRET_ACCESS_KEY":            {},
	"AWS_SESSION_TOKEN":                {},
	"B2_ACCOUNT_KEY":                   {},
	"AZURE_ACCOUNT_KEY":                {},
	"AZURE_ACCOUNT_SAS":                {},
	"AZURE_CLIENT_SECRET":              {},
	"GOOGLE_ACCESS_TOKEN":              {},
	"OS_PASSWORD":                      {},
	"OS_APPLICATION_CREDENTIAL_SECRET": {},
	"ST_KEY":                           {},
}

// sensitiveEnvMarkers flag any other variable whose name contains them.
var sensitiveEnvMarkers = []string{"PASSWORD", "SECRET", "TOKEN", "_KEY", "CREDENTIAL"}

// IsSensitiveEnvVar reports whether an environment variable name is likely
// to hold a credential.
func IsSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)

	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	for _, marker := range sensitiveEnvMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
