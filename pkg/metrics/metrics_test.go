package metrics_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/metrics"
)

func TestCollector_ObserveWebhook(t *testing.T) {
	t.Parallel()
	c := metrics.New()

	c.ObserveWebhook("subscription.created", billing.OutcomeProcessed, 20*time.Millisecond)
	c.ObserveWebhook("subscription.created", billing.OutcomeDuplicate, time.Millisecond)
	c.ObserveWebhook("", billing.OutcomeFailed, time.Millisecond)

	expected := `
# HELP billsync_webhook_events_total Webhook deliveries by event type and outcome.
# TYPE billsync_webhook_events_total counter
billsync_webhook_events_total{outcome="duplicate",type="subscription.created"} 1
billsync_webhook_events_total{outcome="failed",type="unknown"} 1
billsync_webhook_events_total{outcome="processed",type="subscription.created"} 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "billsync_webhook_events_total"))
	n, err := testutil.GatherAndCount(c.Registry(), "billsync_webhook_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollector_ObserveAction(t *testing.T) {
	t.Parallel()
	c := metrics.New()

	c.ObserveAction(billing.ActionSwitchPlan, nil)
	c.ObserveAction(billing.ActionSwitchPlan, billing.ErrNoActiveSubscription)
	c.ObserveAction(billing.ActionCancel, errors.Join(billing.ErrProviderError, fmt.Errorf("timeout")))
	c.ObserveAction(billing.ActionConsumeCredits, billing.ErrInsufficientCredits)

	expected := `
# HELP billsync_actions_total User billing actions by result.
# TYPE billsync_actions_total counter
billsync_actions_total{action="cancel",result="error"} 1
billsync_actions_total{action="consume_credits",result="rejected"} 1
billsync_actions_total{action="switch_plan",result="ok"} 1
billsync_actions_total{action="switch_plan",result="rejected"} 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "billsync_actions_total"))
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()
	c := metrics.New()
	c.ObserveAction(billing.ActionSync, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `billsync_actions_total{action="sync",result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
