package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/billing"
)

type BillingHandler struct {
	Billing *billing.Service
}

type paymentMethodBody struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

type chargeBody struct {
	Tokens int64 `json:"tokens"`
}

// SetPaymentMethod stores the identifier the payment provider returned after
// checkout.
func (h *BillingHandler) SetPaymentMethod(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var body paymentMethodBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.InvalidArgument("Invalid request"))
		return
	}

	cust, err := h.Billing.SetPaymentMethod(c.Request.Context(), caller.OwnerID, body.PaymentMethodID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customerView(cust)})
}

func (h *BillingHandler) Balance(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	cust, err := h.Billing.Balance(c.Request.Context(), caller.OwnerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customerView(cust)})
}

func (h *BillingHandler) Charge(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var body chargeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.InvalidArgument("Invalid request"))
		return
	}

	cust, err := h.Billing.Charge(c.Request.Context(), caller.OwnerID, body.Tokens)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customerView(cust)})
}

// ListCustomers lists every customer record. The route is admin only.
func (h *BillingHandler) ListCustomers(c *gin.Context) {
	customers, err := h.Billing.Customers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]gin.H, 0, len(customers))
	for _, cust := range customers {
		resp = append(resp, customerView(cust))
	}
	c.JSON(http.StatusOK, gin.H{"customers": resp})
}
