// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli implements the baton command tree. Every command talks to a
// running batond through the HTTP API and prints JSON, so output can be
// piped straight into jq or scripts.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/client"
)

// Version information, set from main via SetVersion.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// serverURL is bound to the global --server flag.
var serverURL string

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// NewRootCommand creates the root Cobra command for baton.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baton",
		Short: "Baton - durable workflow orchestration",
		Long: `Baton drives a batond daemon: start workflow runs, resume paused ones
with inputs or approval decisions, and inspect run state and history.

Set --server (or BATON_SERVER) to address a daemon that is not on
localhost:8080.`,
		// Errors reach the user once, through HandleExitError, which also
		// picks the exit code.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Daemon base URL (default: BATON_SERVER or http://localhost:8080)")

	return cmd
}

// apiClient builds a client for the configured daemon. The --server flag
// wins over the BATON_SERVER environment variable.
func apiClient() (*client.Client, error) {
	base := serverURL
	if base == "" {
		base = os.Getenv("BATON_SERVER")
	}
	return client.New(base)
}

// ExitError is an error that carries an exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// Exit codes for the baton CLI.
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitInvalidWorkflow = 2
)

// HandleExitError prints err and exits with its code, defaulting to 1.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		os.Exit(exitErr.Code)
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitFailure)
}
