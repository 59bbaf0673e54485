package gallery

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// load gallery config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *GalleryConfig, error:
//
//	When loading success, returns `(*GalleryConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadGalleryConfig(filepath string) (*GalleryConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces "${NAME}" in conf with the value of environment variable NAME.
//
// Undefined variables are replaced with empty. "$" not followed by "{" is kept as it is.
func ExpandEnv(conf []byte, lookup func(string) (string, bool)) []byte {
	return envRef.ReplaceAllFunc(conf, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		v, _ := lookup(string(name))
		return []byte(v)
	})
}

// Unmarshal parses config in yaml, with expanding environment variables.
func Unmarshal(conf []byte) (out *GalleryConfig, err error) {
	var m *GalleryConfigMarshall
	if err := yaml.Unmarshal(ExpandEnv(conf, os.LookupEnv), &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("config is empty")
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("invalid config: %v", r)
		}
	}()
	return TrySeal(m), nil
}
