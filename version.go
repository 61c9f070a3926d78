package fhiravro

import "runtime/debug"

// Version is the library version. Release builds override it with
// -ldflags "-X github.com/gofhir/fhiravro.Version=v1.2.3".
var Version = "dev"

// FHIRVersion represents a FHIR specification version.
type FHIRVersion string

// R4 is FHIR Release 4 (4.0.1), the version the element model and the
// built-in schemas target.
const R4 FHIRVersion = "R4"

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	FHIR      string `json:"fhir"`
	GoVersion string `json:"go"`
	Revision  string `json:"revision,omitempty"`
}

// Build returns version information for the running binary.
func Build() BuildInfo {
	info := BuildInfo{Version: Version, FHIR: R4.String()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info.Revision = s.Value
		}
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	return info
}
