package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"cooksa_backend/internal/controller"
	"cooksa_backend/internal/middleware"
	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store"
	"cooksa_backend/internal/store/storetest"
	"cooksa_backend/pkg/billing"
	"cooksa_backend/pkg/content"
	"cooksa_backend/pkg/entitlements"
	"cooksa_backend/pkg/subscription"
	"cooksa_backend/pkg/utils/cloudflare"
	"cooksa_backend/pkg/utils/jwt"
)

const (
	webhookSecret = "whsec_test_secret"
	appURL        = "https://app.cooksa.test"

	priceProMonthly      = "price_pro_monthly"
	pricePowerAnnual     = "price_power_annual"
	priceBusinessStarter = "price_business_starter_monthly"
)

var testPrices = subscription.PriceIDs{
	ProMonthly:             priceProMonthly,
	PowerAnnual:            pricePowerAnnual,
	BusinessStarterMonthly: priceBusinessStarter,
}

// fakeProcessor records calls and serves canned subscriptions.
type fakeProcessor struct {
	mu            sync.Mutex
	subscriptions map[string]*stripe.Subscription
	productMeta   map[string]map[string]string
	err           error

	customers []string
	checkouts []billing.CheckoutRequest
	portals   []string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		subscriptions: map[string]*stripe.Subscription{},
		productMeta:   map[string]map[string]string{},
	}
}

func (f *fakeProcessor) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func (f *fakeProcessor) GetProductMetadata(_ context.Context, priceID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.productMeta[priceID], nil
}

func (f *fakeProcessor) CreateCustomer(_ context.Context, email string, _ uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.customers = append(f.customers, email)
	return fmt.Sprintf("cus_new_%d", len(f.customers)), nil
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.checkouts = append(f.checkouts, req)
	return "https://checkout.stripe.test/c/" + string(req.Mode), nil
}

func (f *fakeProcessor) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.portals = append(f.portals, customerID)
	return "https://billing.stripe.test/p/" + customerID, nil
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.customers) + len(f.checkouts) + len(f.portals)
}

func (f *fakeProcessor) setSubscription(sub *stripe.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[sub.ID] = sub
}

func (f *fakeProcessor) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type sentNotice struct {
	kind    string
	to      string
	tier    subscription.Tier
	status  subscription.Status
	added   int64
	balance int64
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *recordingNotifier) SendPaymentFailed(_ context.Context, to string, tier subscription.Tier, status subscription.Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{kind: "payment_failed", to: to, tier: tier, status: status})
	return nil
}

func (n *recordingNotifier) SendCreditsAdded(_ context.Context, to string, added, balance int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{kind: "credits_added", to: to, added: added, balance: balance})
	return nil
}

func (n *recordingNotifier) notices() []sentNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotice(nil), n.sent...)
}

// memoryObjects is an ObjectStore that keeps uploads in memory.
type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}}
}

func (m *memoryObjects) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "https://cdn.cooksa.test/" + key
	m.objects[url] = raw
	return url, nil
}

func (m *memoryObjects) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !strings.HasPrefix(url, "https://cdn.cooksa.test/") {
		return cloudflare.ErrForeignURL
	}
	delete(m.objects, url)
	m.deleted = append(m.deleted, url)
	return nil
}

type fakeContent struct {
	countries []content.Country
	err       error
}

func (f *fakeContent) Countries(context.Context) ([]content.Country, error) {
	return f.countries, f.err
}

func (f *fakeContent) Country(_ context.Context, id string) (*content.Country, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.countries {
		if f.countries[i].ID == id {
			return &f.countries[i], nil
		}
	}
	return nil, content.ErrNotFound
}

type testServer struct {
	app       *fiber.App
	store     *store.Store
	processor *fakeProcessor
	notifier  *recordingNotifier
	objects   *memoryObjects
	content   *fakeContent
	signer    *jwt.Signer
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithSecret(t, webhookSecret)
}

func newTestServerWithSecret(t *testing.T, secret string) *testServer {
	t.Helper()

	ts := &testServer{
		store:     storetest.New(t),
		processor: newFakeProcessor(),
		notifier:  &recordingNotifier{},
		objects:   newMemoryObjects(),
		content:   &fakeContent{},
		signer:    jwt.NewSigner("test-jwt-secret", time.Hour),
	}

	catalog := subscription.NewCatalog(testPrices)
	events := billing.NewEventHandler(secret, ts.store, ts.processor, catalog, ts.notifier)
	resolver := entitlements.NewResolver(ts.store)

	authCtrl := controller.NewAuthController(ts.store, ts.signer)
	billingCtrl := controller.NewBillingController(ts.store, ts.processor, catalog, appURL)
	webhookCtrl := controller.NewWebhookController(events)
	profileCtrl := controller.NewProfileController(ts.store, ts.objects)
	entCtrl := controller.NewEntitlementsController(resolver)
	contentCtrl := controller.NewContentController(ts.content)

	app := fiber.New(fiber.Config{BodyLimit: 6 * 1024 * 1024})
	api := app.Group("/api")
	requireAuth := middleware.AuthMiddleware(ts.signer)

	api.Post("/auth/register", authCtrl.Register)
	api.Post("/auth/login", authCtrl.Login)
	api.Post("/auth/guest", authCtrl.Guest)
	api.Post("/auth/session", requireAuth, authCtrl.Session)
	api.Get("/me", requireAuth, authCtrl.GetMe)

	api.Get("/stripe/webhook", webhookCtrl.Status)
	api.Post("/stripe/webhook", webhookCtrl.Handle)
	api.Post("/stripe/checkout", requireAuth, billingCtrl.Checkout)
	api.Post("/stripe/buy-credits", requireAuth, billingCtrl.BuyCredits)
	api.Post("/stripe/portal", requireAuth, billingCtrl.Portal)

	api.Get("/entitlements", requireAuth, middleware.LoadEntitlements(resolver), entCtrl.Get)
	api.Post("/avatar/upload", requireAuth, profileCtrl.UploadAvatar)

	api.Get("/countries", contentCtrl.ListCountries)
	api.Get("/countries/:id", contentCtrl.GetCountry)

	ts.app = app
	return ts
}

func (ts *testServer) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{
		Email:       email,
		Type:        model.UserTypeRegular,
		AccountType: model.AccountIndividual,
	}
	require.NoError(t, ts.store.CreateUser(context.Background(), u))
	return u
}

func (ts *testServer) linkCustomer(t *testing.T, u *model.User, customerID string) {
	t.Helper()
	require.NoError(t, ts.store.SetUserStripeCustomerID(context.Background(), u.ID, customerID))
	u.StripeCustomerID = &customerID
}

func (ts *testServer) token(t *testing.T, u *model.User) string {
	t.Helper()
	token, err := ts.signer.GenerateToken(u.ID, u.Email, string(u.Type), u.AvatarURL)
	require.NoError(t, err)
	return token
}

func (ts *testServer) subscription(t *testing.T, userID uint) *model.Subscription {
	t.Helper()
	sub, err := ts.store.SubscriptionByUserID(context.Background(), userID)
	require.NoError(t, err)
	return sub
}

func (ts *testServer) user(t *testing.T, userID uint) *model.User {
	t.Helper()
	u, err := ts.store.UserByID(context.Background(), userID)
	require.NoError(t, err)
	return u
}

// do runs the request and decodes a JSON object body.
func (ts *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func jsonRequest(t *testing.T, method, path, token string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func eventPayload(t *testing.T, id, eventType string, created time.Time, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func signedWebhook(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  webhookSecret,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func (ts *testServer) deliver(t *testing.T, id, eventType string, created time.Time, object map[string]any) (int, map[string]any) {
	t.Helper()
	return ts.do(t, signedWebhook(t, eventPayload(t, id, eventType, created, object)))
}

func subscriptionObject(id, customerID, priceID, status string, periodStart, periodEnd time.Time) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             customerID,
		"status":               status,
		"cancel_at_period_end": false,
		"current_period_start": periodStart.Unix(),
		"current_period_end":   periodEnd.Unix(),
		"items": map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{
					"id":     "si_" + id,
					"object": "subscription_item",
					"price":  map[string]any{"id": priceID, "object": "price"},
				},
			},
		},
	}
}

func stripeSubscription(id, customerID, priceID string, status stripe.SubscriptionStatus, periodStart, periodEnd time.Time) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 id,
		Customer:           &stripe.Customer{ID: customerID},
		Status:             status,
		CurrentPeriodStart: periodStart.Unix(),
		CurrentPeriodEnd:   periodEnd.Unix(),
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{ID: "si_" + id, Price: &stripe.Price{ID: priceID}},
			},
		},
	}
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
