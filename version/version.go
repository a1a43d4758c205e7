package version

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Set at build time with -ldflags "-X".
var (
	Version   string
	Commit    string
	Branch    string
	BuildTime string
	BuiltBy   string
)

func String() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	return fmt.Sprintf("%s (commit %s, branch %s, built %s by %s)", v, Commit, Branch, BuildTime, BuiltBy)
}

func PrintVersion() {
	fmt.Println(String())
}

// LogStartup records which build of component is starting.
func LogStartup(component string) {
	log.Info().
		Str("component", component).
		Str("version", Version).
		Str("commit", Commit).
		Str("branch", Branch).
		Msg("Starting")
}
