// Command threatgate runs the OAuth authorization server that bridges
// AI-assistant OAuth clients to the IriusRisk API through static per-user
// credential mappings.
package main

func main() {
	Execute()
}
