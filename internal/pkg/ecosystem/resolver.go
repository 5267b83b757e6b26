package ecosystem

import "regexp"

// Resolver extracts a package coordinate from an artifact. It returns false when the artifact does not follow the
// ecosystem's naming layout.
type Resolver func(in Input) (Coordinate, bool)

var (
	npmPattern       = regexp.MustCompile(`^(?:[^:/]+:)?((?:@[^/]+/)?[^/@]+)/-/[^/]*?-(\d+\.\d+\.\d+(?:[-+][0-9A-Za-z.+-]+)?)\.tgz$`)
	pypiSdistPattern = regexp.MustCompile(`^(?:.*/)?(.+)-(\d[^-/]*)\.(?:tar\.gz|zip)$`)
	pypiBuiltPattern = regexp.MustCompile(`^(?:.*/)?([^-/]+)-(\d[^-/]*)(?:-[^/]*)?\.(?:whl|egg)$`)
	rubygemsPattern  = regexp.MustCompile(`(?i)^(?:.*/)?(.+)-([^-/]+)\.gem$`)
	nugetPattern     = regexp.MustCompile(`(?i)^(?:.*/)?(.+?)\.(\d+(?:\.\d+)+(?:-[0-9A-Za-z.-]+)?)\.nupkg$`)
	cocoapodsPattern = regexp.MustCompile(`^(?:.*/)?(.+)-[A-Za-z]*(\d[^/]*?)\.(?:tar\.gz|zip)$`)
)

var resolvers = map[Ecosystem]Resolver{
	Maven:     resolveMaven,
	Npm:       resolveNpm,
	PyPI:      resolvePyPI,
	RubyGems:  resolveRubyGems,
	NuGet:     resolveNuGet,
	CocoaPods: resolveCocoaPods,
}

// Resolve dispatches to the resolver registered for eco.
func Resolve(eco Ecosystem, in Input) (Coordinate, bool) {
	r, ok := resolvers[eco]
	if !ok {
		return Coordinate{}, false
	}
	return r(in)
}

func coordinate(eco Ecosystem, name, version string) (Coordinate, bool) {
	if name == "" || version == "" {
		return Coordinate{}, false
	}
	return Coordinate{Ecosystem: eco, Name: name, Version: version}, true
}

// resolveMaven relies entirely on the repository layout: organization is the groupId, module the artifactId.
func resolveMaven(in Input) (Coordinate, bool) {
	l := in.Layout
	if l.Organization == "" || l.Module == "" || l.BaseRevision == "" {
		return Coordinate{}, false
	}
	return coordinate(Maven, l.Organization+":"+l.Module, l.BaseRevision)
}

// resolveNpm parses "<repo>:<name>/-/<name>-<version>.tgz", where name may carry an "@scope/" prefix.
func resolveNpm(in Input) (Coordinate, bool) {
	m := npmPattern.FindStringSubmatch(npmSource(in))
	if m == nil {
		return Coordinate{}, false
	}
	return coordinate(Npm, m[1], m[2])
}

func npmSource(in Input) string {
	if in.RepoKey == "" {
		return in.Path
	}
	return in.ID()
}

// resolvePyPI prefers the layout fields and falls back to the distribution filename. Source distributions take the
// version after the last hyphen; wheel and egg names never contain one, so everything after the version is tags.
func resolvePyPI(in Input) (Coordinate, bool) {
	if in.Layout.Module != "" && in.Layout.BaseRevision != "" {
		return coordinate(PyPI, in.Layout.Module, in.Layout.BaseRevision)
	}
	m := pypiSdistPattern.FindStringSubmatch(in.Path)
	if m == nil {
		m = pypiBuiltPattern.FindStringSubmatch(in.Path)
	}
	if m == nil {
		return Coordinate{}, false
	}
	return coordinate(PyPI, m[1], m[2])
}

func resolveRubyGems(in Input) (Coordinate, bool) {
	m := rubygemsPattern.FindStringSubmatch(in.Filename())
	if m == nil {
		return Coordinate{}, false
	}
	return coordinate(RubyGems, m[1], m[2])
}

func resolveNuGet(in Input) (Coordinate, bool) {
	m := nugetPattern.FindStringSubmatch(in.Filename())
	if m == nil {
		return Coordinate{}, false
	}
	return coordinate(NuGet, m[1], m[2])
}

func resolveCocoaPods(in Input) (Coordinate, bool) {
	m := cocoapodsPattern.FindStringSubmatch(in.Filename())
	if m == nil {
		return Coordinate{}, false
	}
	return coordinate(CocoaPods, m[1], m[2])
}
