// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jeranaias/forgechat/internal/api"
	"github.com/jeranaias/forgechat/internal/config"
)

// Exit codes by error category.
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// UsageError is a malformed command line.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// ExitCode maps err onto an exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsageError
	}

	var verrs config.ValidateErrors
	if errors.As(err, &verrs) {
		return ExitConfigError
	}

	var abort *api.AbortError
	if errors.As(err, &abort) {
		if abort.Timeout {
			return ExitTimeoutError
		}
		return ExitGeneralError
	}

	switch api.StatusOf(err) {
	case 0:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ExitAuthError
	case http.StatusNotFound:
		return ExitNotFoundError
	default:
		return ExitNetworkError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ExitNetworkError
	}
	return ExitGeneralError
}

// hint suggests a next step for err, or returns "".
func hint(err error) string {
	var abort *api.AbortError
	if errors.As(err, &abort) && abort.Timeout {
		return fmt.Sprintf("The backend did not answer within %s. Raise the limit with: forgechat config set timeouts.<name> <duration>", abort.Budget)
	}

	switch ExitCode(err) {
	case ExitAuthError:
		return "Check the API key: forgechat config set api_key <key>"
	case ExitNetworkError:
		if api.StatusOf(err) == 0 {
			return "Is the backend running? Check api_url, or pass --demo to try forgechat without one."
		}
	case ExitConfigError:
		return "Fix the settings listed above, or see: forgechat config set --help"
	}
	return ""
}

// printError writes err and any hint to w.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, ErrorStyle.Render("Error:"), err)
	if h := hint(err); h != "" {
		fmt.Fprintln(w, DimStyle.Render(h))
	}
}
