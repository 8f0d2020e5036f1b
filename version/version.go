package version

const (
	// TPFSemVer is used as the fallback version of txpoolfuzz
	// when not using git describe. It uses semantic versioning format.
	TPFSemVer = "0.3.0-dev"

	// StoreVersion versions the on-disk layout of a data directory. A data
	// directory written with a different version is refused by run.
	StoreVersion uint64 = 1
)

// TPFGitCommitHash uses git rev-parse HEAD to find commit hash which is helpful
// for the engineering team when working with the txpoolfuzz binary.
var TPFGitCommitHash = ""

// String returns the version, with the commit hash appended when known.
func String() string {
	if TPFGitCommitHash == "" {
		return TPFSemVer
	}
	return TPFSemVer + "+" + TPFGitCommitHash
}
