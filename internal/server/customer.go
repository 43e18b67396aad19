package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/portalsync/internal/customer/domain"
)

type upsertProfileRequest struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Company   string  `json:"company"`
	VATNumber *string `json:"vat_number"`
	Address   *string `json:"address"`
}

func (s *Server) GetProfile(c *gin.Context) {
	item, err := s.customerSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpsertProfile(c *gin.Context) {
	var req upsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Upsert(c.Request.Context(), customerdomain.UpsertCustomerRequest{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Company:   strings.TrimSpace(req.Company),
		VATNumber: req.VATNumber,
		Address:   req.Address,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
