package djangoreconciler

import "strings"

// ConfigError reports that one or more of the small fixed required spec
// fields (host, image, version, clusterIssuer) was empty at construction
// time. It is always permanent: the pipeline never starts for a
// misconfigured Django.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing required field(s): " + strings.Join(e.Missing, ", ")
}
