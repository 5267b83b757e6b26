package ecosystem

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Ecosystem identifies a package manager domain.
type Ecosystem string

const (
	Maven     Ecosystem = "maven"
	Npm       Ecosystem = "npm"
	PyPI      Ecosystem = "pypi"
	RubyGems  Ecosystem = "rubygems"
	NuGet     Ecosystem = "nuget"
	CocoaPods Ecosystem = "cocoapods"
)

// All lists the supported ecosystems.
var All = []Ecosystem{Maven, Npm, PyPI, RubyGems, NuGet, CocoaPods}

var ErrNoEcosystem = errors.New("no ecosystem supports this artifact")

// Coordinate identifies one release of a package. For Maven the name is "groupId:artifactId".
type Coordinate struct {
	Ecosystem Ecosystem
	Name      string
	Version   string
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s:%s@%s", c.Ecosystem, c.Name, c.Version)
}

// Layout is the coordinate metadata a repository derives from its layout configuration. Any field may be empty.
type Layout struct {
	Organization string `json:"organization"`
	Module       string `json:"module"`
	BaseRevision string `json:"baseRevision"`
}

// Input describes an artifact as the repository reports it.
type Input struct {
	RepoKey     string
	Path        string
	PackageType string
	Layout      Layout
}

// ID returns the qualified "<repoKey>:<path>" identifier of the artifact.
func (in Input) ID() string {
	return in.RepoKey + ":" + in.Path
}

// Filename returns the last path segment.
func (in Input) Filename() string {
	return path.Base(in.Path)
}

// Select maps an artifact onto the single ecosystem that handles it. The file extension alone decides Maven and
// npm; the remaining ecosystems also require the repository's package type to agree.
func Select(packageType, artifactPath string) (Ecosystem, error) {
	p := strings.ToLower(artifactPath)
	pt := strings.ToLower(strings.TrimSpace(packageType))

	switch {
	case strings.HasSuffix(p, ".jar"):
		return Maven, nil
	case strings.HasSuffix(p, ".tgz"):
		return Npm, nil
	}

	switch pt {
	case "pypi":
		if hasAnySuffix(p, ".whl", ".egg", ".zip", ".tar.gz") {
			return PyPI, nil
		}
	case "cocoapods":
		if hasAnySuffix(p, ".tar.gz", ".zip") {
			return CocoaPods, nil
		}
	case "nuget":
		if strings.HasSuffix(p, ".nupkg") {
			return NuGet, nil
		}
	case "gems", "rubygems":
		if strings.HasSuffix(p, ".gem") {
			return RubyGems, nil
		}
	}
	return "", fmt.Errorf("%w: package type %q, path %q", ErrNoEcosystem, packageType, artifactPath)
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
