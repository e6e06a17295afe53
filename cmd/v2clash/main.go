// v2clash turns vmess:// and vless:// share links into a Clash configuration
// by merging them into a user-supplied template.
//
// Usage:
//
//	# Serve GET /clash with settings from config.yaml
//	v2clash serve --config config.yaml
//
//	# One-shot conversion to a file
//	v2clash convert --links links.txt --template template.yaml --output clash.yaml
//
//	# Container health probe
//	v2clash healthcheck --listen 0.0.0.0:25500
package main

func main() {
	Execute()
}
