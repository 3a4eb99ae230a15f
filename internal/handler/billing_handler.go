package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/casadesoftware/GeoMun/internal/billing"
	"github.com/casadesoftware/GeoMun/internal/model"
	"github.com/casadesoftware/GeoMun/pkg/config"
	"github.com/casadesoftware/GeoMun/pkg/database"
	"github.com/casadesoftware/GeoMun/pkg/logger"
	"github.com/casadesoftware/GeoMun/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v76"
	portalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

var stripeCfg config.StripeConfig

// SetStripeConfig wires the payment provider settings into the billing handlers
func SetStripeConfig(cfg config.StripeConfig) {
	stripeCfg = cfg
}

func priceForPlan(plan string) string {
	switch plan {
	case model.PlanBasic:
		return stripeCfg.PriceBasic
	case model.PlanPro:
		return stripeCfg.PricePro
	}
	return ""
}

// callerTenant loads the tenant of the authenticated caller
func callerTenant(c echo.Context) (*model.Tenant, error) {
	claims, ok := currentClaims(c)
	if !ok || claims.TenantID == nil {
		return nil, echo.NewHTTPError(http.StatusForbidden, "no tenant assigned")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, "id = ?", *claims.TenantID); result.Error != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	return &tenant, nil
}

// CreateCheckoutSession starts a subscription checkout for a paid plan and
// returns the hosted payment page URL. The tenant ID rides along as the
// session's client reference so the webhook can route the result.
func CreateCheckoutSession(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Plan string `json:"plan"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse checkout request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if !billing.ValidPaidPlan(req.Plan) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan must be BASIC or PRO"})
	}

	tenant, err := callerTenant(c)
	if err != nil {
		return err
	}

	claims, _ := currentClaims(c)

	// Reuse the tenant's payment customer, creating it on first checkout
	customerID := ""
	if tenant.StripeCustomerID != nil {
		customerID = *tenant.StripeCustomerID
	} else {
		custParams := &stripe.CustomerParams{
			Email: stripe.String(claims.Email),
			Name:  stripe.String(tenant.Name),
		}
		custParams.AddMetadata("tenant_id", tenant.ID)
		cust, err := customer.New(custParams)
		if err != nil {
			log.Error("Failed to create payment customer", zap.Error(err))
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider error"})
		}
		customerID = cust.ID

		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := database.GetDB().Model(tenant).
			Update("stripe_customer_id", customerID).Error; err != nil {
			log.Error("Failed to store payment customer id", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout failed"})
		}
	}

	sessParams := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(tenant.ID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceForPlan(req.Plan)),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(appURL + "/billing?status=success"),
		CancelURL:  stripe.String(appURL + "/billing?status=cancelled"),
	}
	sessParams.AddMetadata("tenant_id", tenant.ID)
	sessParams.AddMetadata("plan", req.Plan)
	sess, err := session.New(sessParams)
	if err != nil {
		log.Error("Failed to create checkout session", zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider error"})
	}

	recordAudit(c, "checkout", "tenant", tenant.ID, map[string]interface{}{"plan": req.Plan})
	log.Info("Checkout session created",
		zap.String("tenant_id", tenant.ID),
		zap.String("plan", req.Plan))

	return c.JSON(http.StatusOK, echo.Map{"url": sess.URL})
}

// CreatePortalSession returns a hosted billing portal URL where the tenant's
// admin can manage the subscription
func CreatePortalSession(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := callerTenant(c)
	if err != nil {
		return err
	}

	if tenant.StripeCustomerID == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no billing account, subscribe first"})
	}

	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*tenant.StripeCustomerID),
		ReturnURL: stripe.String(appURL + "/billing"),
	})
	if err != nil {
		log.Error("Failed to create portal session", zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider error"})
	}

	return c.JSON(http.StatusOK, echo.Map{"url": sess.URL})
}

// BillingStatus returns the tenant's current plan, limits and usage
func BillingStatus(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := callerTenant(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var userCount, mapCount, layerCount int64
	database.GetDB().Model(&model.User{}).
		Where("tenant_id = ? AND active = ?", tenant.ID, true).
		Count(&userCount)
	database.GetDB().Model(&model.Map{}).
		Where("tenant_id = ?", tenant.ID).
		Count(&mapCount)
	database.GetDB().Model(&model.Layer{}).
		Joins("JOIN maps ON maps.id = layers.map_id").
		Where("maps.tenant_id = ?", tenant.ID).
		Count(&layerCount)

	log.Debug("Billing status requested", zap.String("tenant_id", tenant.ID))

	return c.JSON(http.StatusOK, echo.Map{
		"plan":             tenant.Plan,
		"plan_expires_at":  tenant.PlanExpiresAt,
		"has_subscription": tenant.StripeSubscriptionID != nil,
		"limits": echo.Map{
			"max_users":  tenant.MaxUsers,
			"max_maps":   tenant.MaxMaps,
			"max_layers": tenant.MaxLayers,
		},
		"usage": echo.Map{
			"users":  userCount,
			"maps":   mapCount,
			"layers": layerCount,
		},
	})
}

// StripeWebhook processes payment provider events. The signature is verified
// against the webhook secret before anything is trusted; unhandled event types
// are acknowledged and ignored.
func StripeWebhook(c echo.Context) error {
	log := logger.FromContext(c)

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.Error("Failed to read webhook payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	event, err := webhook.ConstructEvent(payload, c.Request().Header.Get("Stripe-Signature"), stripeCfg.WebhookSecret)
	if err != nil {
		log.Warn("Webhook signature verification failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	}

	prometheus.RecordWebhookEvent(string(event.Type))

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Error("Failed to decode checkout session event", zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event"})
		}

		tenantID := sess.ClientReferenceID
		plan := sess.Metadata["plan"]
		if tenantID == "" || !billing.ValidPaidPlan(plan) {
			log.Warn("Checkout event missing tenant or plan", zap.String("tenant_id", tenantID))
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}

		var subscriptionID *string
		if sess.Subscription != nil {
			subscriptionID = &sess.Subscription.ID
		}

		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := billing.ApplyPlan(database.GetDB(), tenantID, plan, subscriptionID); err != nil {
			log.Error("Failed to apply plan", zap.String("tenant_id", tenantID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "plan update failed"})
		}

		log.Info("Plan upgraded",
			zap.String("tenant_id", tenantID),
			zap.String("plan", plan))

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Error("Failed to decode subscription event", zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event"})
		}

		defer prometheus.TrackDBOperation("query")(time.Now())
		var tenant model.Tenant
		result := database.GetDB().Where("stripe_subscription_id = ?", sub.ID).First(&tenant)
		if result.Error != nil {
			log.Warn("Subscription event for unknown tenant", zap.String("subscription_id", sub.ID))
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}

		if err := billing.ApplyPlan(database.GetDB(), tenant.ID, model.PlanFree, nil); err != nil {
			log.Error("Failed to downgrade tenant", zap.String("tenant_id", tenant.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "plan update failed"})
		}

		log.Info("Subscription cancelled, tenant downgraded", zap.String("tenant_id", tenant.ID))

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			log.Error("Failed to decode invoice event", zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event"})
		}

		if inv.Customer == nil {
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}

		defer prometheus.TrackDBOperation("query")(time.Now())
		var tenant model.Tenant
		result := database.GetDB().Where("stripe_customer_id = ?", inv.Customer.ID).First(&tenant)
		if result.Error != nil {
			log.Warn("Invoice event for unknown customer", zap.String("customer_id", inv.Customer.ID))
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}

		if err := billing.ApplyPlan(database.GetDB(), tenant.ID, model.PlanFree, nil); err != nil {
			log.Error("Failed to downgrade tenant", zap.String("tenant_id", tenant.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "plan update failed"})
		}

		log.Warn("Payment failed, tenant downgraded", zap.String("tenant_id", tenant.ID))

	default:
		log.Debug("Ignoring webhook event", zap.String("type", string(event.Type)))
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
