package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/idbroker/internal/api/models"
)

// Build-time variables (set via -ldflags).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// APIVersion is the admin API version prefix.
const APIVersion = "v1"

// NewVersionResponse describes the running binary.
func NewVersionResponse(version string) models.VersionResponse {
	if version == "" {
		version = Version
	}
	return models.VersionResponse{
		Version:    version,
		APIVersion: APIVersion,
		GoVersion:  runtime.Version(),
		BuildTime:  BuildTime,
		GitCommit:  GitCommit,
	}
}

// GetVersion returns a handler serving the version of the running binary.
// GET /api/v1/version
func GetVersion(version string) gin.HandlerFunc {
	resp := NewVersionResponse(version)
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, resp)
	}
}
