// Package version reports the build version, set at link time:
//
//	go build -ldflags "-X github.com/effective-security/aadauth/internal/version.current=v1.2.3"
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

var current = "v0.0.0-dev"

// Info describes the version
type Info struct {
	Major   int
	Minor   int
	Patch   int
	Commit  string
	Build   string
	Runtime string
}

// Current returns the version of the build
func Current() Info {
	return Parse(current)
}

// Parse returns Info from a semver like v1.2.3-45-gabcdef
func Parse(s string) Info {
	v := Info{
		Build:   s,
		Runtime: runtime.Version(),
	}

	s = strings.TrimPrefix(s, "v")
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Commit = s[i+1:]
		s = s[:i]
	}
	parts := strings.SplitN(s, ".", 3)
	nums := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		*nums[i] = n
	}
	return v
}

func (v Info) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
