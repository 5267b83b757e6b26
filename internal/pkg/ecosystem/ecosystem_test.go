package ecosystem

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		packageType string
		path        string
		want        Ecosystem
	}{
		{"maven", "org/example/lib/1.0/lib-1.0.jar", Maven},
		{"generic", "libs/lib-1.0.JAR", Maven},
		{"npm", "lodash/-/lodash-4.17.15.tgz", Npm},
		{"pypi", "foo-1.0.tar.gz", PyPI},
		{"PyPI", "foo-1.0-py3-none-any.whl", PyPI},
		{"pypi", "foo-1.0.egg", PyPI},
		{"pypi", "foo-1.0.zip", PyPI},
		{"cocoapods", "Bolts-ObjC-1.9.1.tar.gz", CocoaPods},
		{"cocoapods", "Bolts-1.9.1.zip", CocoaPods},
		{"nuget", "newtonsoft.json.13.0.0.nupkg", NuGet},
		{"gems", "rack-4.1.1.gem", RubyGems},
		{"rubygems", "rack-4.1.1.gem", RubyGems},
	}
	for _, tt := range tests {
		t.Run(tt.packageType+"/"+tt.path, func(t *testing.T) {
			got, err := Select(tt.packageType, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectNoEcosystem(t *testing.T) {
	for _, tt := range []struct{ packageType, path string }{
		{"generic", "foo-1.0.tar.gz"},
		{"nuget", "foo-1.0.tar.gz"},
		{"pypi", "foo-1.0.gem"},
		{"gems", "foo.1.0.nupkg"},
		{"docker", "manifest.json"},
		{"", ""},
	} {
		_, err := Select(tt.packageType, tt.path)
		assert.True(t, errors.Is(err, ErrNoEcosystem), "%s %s", tt.packageType, tt.path)
	}
}

func TestInput(t *testing.T) {
	in := Input{RepoKey: "npm-remote", Path: "@babel/core/-/core-7.0.0.tgz"}
	assert.Equal(t, "npm-remote:@babel/core/-/core-7.0.0.tgz", in.ID())
	assert.Equal(t, "core-7.0.0.tgz", in.Filename())
	assert.Equal(t, "npm:lodash@4.17.15", Coordinate{Npm, "lodash", "4.17.15"}.String())
}
