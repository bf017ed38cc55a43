// Package config holds the CLI configuration types.
package config

// Role represents the chosen endpoint role (operator or client).
type Role string

const (
	RoleOperator Role = "operator"
	RoleClient   Role = "client"
)

// Endpoint stores all parameters gathered for the endpoint CLI, from flags
// or from the interactive prompts.
type Endpoint struct {
	Role   Role
	Server string // relay base URL, e.g. ws://localhost:3000
}

// Server stores the relay daemon parameters.
type Server struct {
	Addr        string // listen address, e.g. :3000
	StaticDir   string // optional directory of browser assets to serve
	AnalyzerCmd string // external analyzer command line; empty disables analysis
}
