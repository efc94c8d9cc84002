package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/bizboard/internal/authorization"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	obscontext "github.com/smallbiznis/bizboard/internal/observability/context"
)

type checkoutRequest struct {
	Plan          string `json:"plan"`
	BillingPeriod string `json:"billing_period"`
}

type changePlanRequest struct {
	Plan string `json:"plan"`
}

// billingContext authorizes the action and returns the acting org id with
// the request context enriched for downstream logging and audit.
func (s *Server) billingContext(c *gin.Context, action string) (snowflake.ID, bool) {
	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	if err := s.authorizeOrgAction(c, orgID, authorization.ObjectBilling, action); err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	ctx := obscontext.WithOrgID(c.Request.Context(), orgID.String())
	c.Request = c.Request.WithContext(ctx)
	return orgID, true
}

func (s *Server) GetBillingStatus(c *gin.Context) {
	orgID, ok := s.billingContext(c, authorization.ActionBillingView)
	if !ok {
		return
	}
	resp, err := s.billingSvc.GetStatus(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListBillingHistory(c *gin.Context) {
	orgID, ok := s.billingContext(c, authorization.ActionBillingView)
	if !ok {
		return
	}
	history, err := s.billingSvc.ListHistory(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *Server) InitiateCheckout(c *gin.Context) {
	orgID, ok := s.billingContext(c, authorization.ActionBillingCheckout)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.Get(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.InitiateCheckout(c.Request.Context(), billingdomain.InitiateCheckoutRequest{
		OrgID:         orgID,
		Plan:          billingdomain.Plan(strings.TrimSpace(req.Plan)),
		BillingPeriod: billingdomain.BillingPeriod(strings.TrimSpace(req.BillingPeriod)),
		Email:         org.BillingEmail,
		DisplayName:   org.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	orgID, ok := s.billingContext(c, authorization.ActionBillingCancel)
	if !ok {
		return
	}
	resp, err := s.billingSvc.CancelSubscription(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ResumeSubscription(c *gin.Context) {
	orgID, ok := s.billingContext(c, authorization.ActionBillingResume)
	if !ok {
		return
	}
	resp, err := s.billingSvc.ResumeSubscription(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ChangePlan(c *gin.Context) {
	orgID, ok := s.billingContext(c, authorization.ActionBillingChangePlan)
	if !ok {
		return
	}

	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingSvc.ChangePlan(c.Request.Context(), billingdomain.ChangePlanRequest{
		OrgID: orgID,
		Plan:  billingdomain.Plan(strings.TrimSpace(req.Plan)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreatePortalSession(c *gin.Context) {
	orgID, ok := s.billingContext(c, authorization.ActionBillingPortal)
	if !ok {
		return
	}
	resp, err := s.billingSvc.CreatePortalSession(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
