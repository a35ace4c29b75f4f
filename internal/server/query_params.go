package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 200

func queryLimit(c *gin.Context) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
