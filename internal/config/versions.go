package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

var (
	// ErrMissingVersions indicates the versions file does not exist.
	ErrMissingVersions = errors.New("versions file not found")

	// ErrUnknownVersion indicates the requested game version has no section.
	ErrUnknownVersion = errors.New("unknown minecraft version")
)

// versionsDefaultSection holds the shared download settings.
const versionsDefaultSection = "default"

// Versions is the parsed versions file: shared download settings plus one
// Release per game version section.
type Versions struct {
	Current   string
	BaseURL   string
	Libraries []string
	Natives   []string

	releases map[string]Release
}

// Release holds the client/server jar locations and digests of one version.
type Release struct {
	Version   string
	ClientURL string
	ClientMD5 string
	ServerURL string
	ServerMD5 string
}

// LoadVersions reads an INI versions file.
func LoadVersions(path string) (*Versions, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingVersions, path)
		}
		return nil, err
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse versions file %s: %w", path, err)
	}

	def, err := file.GetSection(versionsDefaultSection)
	if err != nil {
		return nil, fmt.Errorf("versions file %s has no [%s] section", path, versionsDefaultSection)
	}

	v := &Versions{
		Current:   def.Key("current_ver").String(),
		BaseURL:   def.Key("base_url").String(),
		Libraries: strings.Fields(def.Key("libraries").String()),
		Natives:   strings.Fields(def.Key("natives").String()),
		releases:  make(map[string]Release),
	}

	for _, sec := range file.Sections() {
		name := sec.Name()
		if name == versionsDefaultSection || name == ini.DefaultSection {
			continue
		}
		v.releases[name] = Release{
			Version:   name,
			ClientURL: sec.Key("client_url").String(),
			ClientMD5: strings.ToLower(sec.Key("client_md5").String()),
			ServerURL: sec.Key("server_url").String(),
			ServerMD5: strings.ToLower(sec.Key("server_md5").String()),
		}
	}

	return v, nil
}

// Release returns the release for version, or for Current when version is empty.
func (v *Versions) Release(version string) (Release, error) {
	if version == "" {
		version = v.Current
	}
	r, ok := v.releases[version]
	if !ok {
		return Release{}, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return r, nil
}
