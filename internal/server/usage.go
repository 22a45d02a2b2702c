package server

import (
	"net/http"

	usageeventdomain "github.com/airislabs/kassa/internal/usageevent/domain"
	"github.com/gin-gonic/gin"
)

// ListUsageEvents pages the caller's billed usage history, newest first.
// The modality query param narrows to one modality.
func (s *Server) ListUsageEvents(c *gin.Context) {
	req := usageeventdomain.ListRequest{
		UserID:   currentUserID(c),
		Modality: c.Query("modality"),
		Page:     parsePagination(c.Query("page_token"), c.Query("page_size")),
	}

	events, pageInfo, err := s.usageSvc.ListByUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":    events,
		"page_info": pageInfo,
	})
}
