// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/forgechat/internal/config"
)

// Backend endpoints.
const (
	EndpointHealth   = "/api/health"
	EndpointThreads  = "/api/threads"
	EndpointFiles    = "/api/files"
	EndpointUpload   = "/api/upload"
	EndpointChat     = "/api/chat"
	EndpointFileChat = "/api/filechat"
)

// ThreadPath is the message-list endpoint of a thread.
func ThreadPath(id int64) string {
	return EndpointThreads + "/" + strconv.FormatInt(id, 10)
}

// FileDeletePath is the delete endpoint of a file.
func FileDeletePath(id int64) string {
	return EndpointFiles + "/" + strconv.FormatInt(id, 10) + "/delete"
}

// FileContentPath is the content endpoint of a file.
func FileContentPath(id int64) string {
	return EndpointFiles + "/" + strconv.FormatInt(id, 10) + "/content"
}

// pathOf strips any query string.
func pathOf(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// Budget returns the time allowed for a call to endpoint. File chat gets the
// longest budget, plain chat a medium one, uploads their own, and everything
// else the short default.
func Budget(endpoint string, t config.TimeoutConfig) time.Duration {
	p := pathOf(endpoint)
	switch {
	case strings.Contains(p, "/filechat"):
		return t.FileChat.D()
	case strings.Contains(p, "/chat"):
		return t.Chat.D()
	case p == EndpointUpload:
		return t.Upload.D()
	default:
		return t.Default.D()
	}
}
