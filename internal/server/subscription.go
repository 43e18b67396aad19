package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
	"github.com/smallbiznis/portalsync/pkg/db/pagination"
)

type transitionRequest struct {
	Status string `json:"status"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		ServiceName:  strings.TrimSpace(req.ServiceName),
		Amount:       strings.TrimSpace(req.Amount),
		Currency:     strings.TrimSpace(req.Currency),
		BillingCycle: subscriptiondomain.BillingCycle(strings.TrimSpace(string(req.BillingCycle))),
		TaxRate:      strings.TrimSpace(req.TaxRate),
		Metadata:     req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionRequest{
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	item, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteSubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	if err := s.subscriptionSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// TransitionSubscription takes the target status from the body.
func (s *Server) TransitionSubscription(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.transitionSubscription(c, subscriptiondomain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(req.Status))))
}

func (s *Server) ActivateSubscription(c *gin.Context) {
	s.transitionSubscription(c, subscriptiondomain.SubscriptionStatusActive)
}

func (s *Server) PauseSubscription(c *gin.Context) {
	s.transitionSubscription(c, subscriptiondomain.SubscriptionStatusPaused)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	s.transitionSubscription(c, subscriptiondomain.SubscriptionStatusCancelled)
}

func (s *Server) transitionSubscription(c *gin.Context, target subscriptiondomain.SubscriptionStatus) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	item, err := s.subscriptionSvc.TransitionSubscription(c.Request.Context(), id, target)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// BillingCallback records the upstream reference reported by the billing
// workflow once it has created the subscription on its side.
func (s *Server) BillingCallback(c *gin.Context) {
	var req subscriptiondomain.ApplyExternalReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.subscriptionSvc.ApplyExternalReference(c.Request.Context(), subscriptiondomain.ApplyExternalReferenceRequest{
		SubscriptionID:   strings.TrimSpace(req.SubscriptionID),
		StripeID:         strings.TrimSpace(req.StripeID),
		StripeCustomerID: req.StripeCustomerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func subscriptionIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return "", false
	}
	return id, true
}
