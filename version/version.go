package version

// Flag contains extra info about the version. It is helpful for tracking
// versions while developing. It should always be empty on the master branch.
// This will be enforced in a continuous integration test.
const Flag = "develop"

var (
	// Version is the full version string of the meshledger node binary.
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X github.com/meshledger/meshledger/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	Version += "-" + Flag

	if GitCommit != "" {
		Version += "-" + GitCommit[:8]
	}
}
