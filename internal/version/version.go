package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// SnifferProtocol identifies the sniffer firmware UART protocol generation
// this build decodes. It is fixed at compile time and read-only thereafter.
const SnifferProtocol = "V1.1"
