package mediaforge

// Version is the SDK version reported in the MediaForge-Client header.
// Overridable at build time:
//
//	go build -ldflags "-X github.com/mediaforge-io/mediaforge-go.Version=1.2.3"
var Version = "1.0.0"

func clientHeaderValue() string {
	return "go-sdk:" + Version
}
