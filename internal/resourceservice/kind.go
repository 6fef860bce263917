package resourceservice

// Kind enumerates the workload kinds ResourceService knows how to
// ensure. Kept as an explicit sum type and a table of adapters (see
// adapters.go) rather than string-keyed dynamic dispatch, so each kind's
// verbs stay ordinary compiled method calls.
type Kind int

const (
	KindDeployment Kind = iota
	KindService
	KindIngress
	KindPod
	KindJob
	KindHPA
)

// String returns the lowercase kind name used both in status.created keys
// and in manifest template file names ("{kind}_{purpose}.yaml").
func (k Kind) String() string {
	switch k {
	case KindDeployment:
		return "deployment"
	case KindService:
		return "service"
	case KindIngress:
		return "ingress"
	case KindPod:
		return "pod"
	case KindJob:
		return "job"
	case KindHPA:
		return "horizontalpodautoscaler"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of String, used by callers that only have the
// status.created key (the monitor daemon re-reading each inventoried
// object to check for drift).
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "deployment":
		return KindDeployment, true
	case "service":
		return KindService, true
	case "ingress":
		return KindIngress, true
	case "pod":
		return KindPod, true
	case "job":
		return KindJob, true
	case "horizontalpodautoscaler":
		return KindHPA, true
	default:
		return 0, false
	}
}
