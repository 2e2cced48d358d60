package admission

import "strings"

const (
	// UploadSuffix is the reserved last token of every upload mount name.
	UploadSuffix = "upload"
	// CollectedSuffix replaces UploadSuffix in the paired collected mount.
	CollectedSuffix = "collected"
	// SentinelMarkerName is the zero-byte file used for the mount-sanity round trip.
	SentinelMarkerName = ".caravel-sentinel"
)

// WorkItem is one admitted mount. Values are copied, never shared.
type WorkItem struct {
	UploadName string
	// UploadDir and CollectDir are local filesystem paths.
	UploadDir   string
	CollectName string
	CollectDir  string
	// UploadRemote and CollectRemote are store-relative paths.
	UploadRemote   string
	CollectRemote  string
	LockMarkerPath string
	ShareID        string
	Family         string
	// NotifyAddresses may be empty.
	NotifyAddresses []string
}

// Recipients returns a copy of the notification addresses.
func (w WorkItem) Recipients() []string {
	return append([]string(nil), w.NotifyAddresses...)
}

func isDelimiter(r rune) bool { return r == '_' || r == '-' }

// SplitName breaks a mount base name into its underscore/hyphen tokens.
func SplitName(name string) []string {
	return strings.FieldsFunc(name, isDelimiter)
}

// HasUploadSuffix reports whether name ends in a delimited upload token.
func HasUploadSuffix(name string) bool {
	if !strings.HasSuffix(name, UploadSuffix) {
		return false
	}
	prefix := strings.TrimSuffix(name, UploadSuffix)
	if prefix == "" {
		return false
	}
	last := rune(prefix[len(prefix)-1])
	return isDelimiter(last) && len(SplitName(prefix)) > 0
}

// FamilyOf extracts the data-type family from an upload mount name: the
// second token when the name carries a project prefix, otherwise the first.
func FamilyOf(name string) string {
	tokens := SplitName(name)
	switch {
	case len(tokens) > 2:
		return tokens[1]
	case len(tokens) > 0:
		return tokens[0]
	default:
		return ""
	}
}

// CollectedName derives the paired collected mount name.
func CollectedName(uploadName string) string {
	return strings.TrimSuffix(uploadName, UploadSuffix) + CollectedSuffix
}
