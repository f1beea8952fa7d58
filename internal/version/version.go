package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is set at build time via -ldflags "-X".
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func Get() Info {
	return Info{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("spinup %s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}

// UserAgent is sent with outbound model API requests.
func UserAgent() string {
	return "spinup/" + Version
}
