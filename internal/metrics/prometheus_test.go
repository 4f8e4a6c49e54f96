package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	r := NewPrometheus()

	r.IncUpdate("start")
	r.IncUpdate("start")
	r.IncUpdate("verify")
	r.IncUpdateDropped()
	r.IncMembershipCheck(MembershipNotMember)
	r.IncFlow(FlowCompleted)
	r.ObserveFlowDuration(3 * time.Second)
	r.IncBroadcastDelivery(DeliveryDelivered)
	r.IncBroadcastDelivery(DeliveryFailed)
	r.IncBroadcastDelivery(DeliveryDelivered)

	if got := testutil.ToFloat64(r.updates.WithLabelValues("start")); got != 2 {
		t.Fatalf("expected 2 start updates, got %v", got)
	}
	if got := testutil.ToFloat64(r.updatesDropped); got != 1 {
		t.Fatalf("expected 1 dropped update, got %v", got)
	}
	if got := testutil.ToFloat64(r.membershipChecks.WithLabelValues(MembershipNotMember)); got != 1 {
		t.Fatalf("expected 1 not_member check, got %v", got)
	}
	if got := testutil.ToFloat64(r.flows.WithLabelValues(FlowCompleted)); got != 1 {
		t.Fatalf("expected 1 completed flow, got %v", got)
	}
	if got := testutil.ToFloat64(r.broadcastDelivery.WithLabelValues(DeliveryDelivered)); got != 2 {
		t.Fatalf("expected 2 deliveries, got %v", got)
	}
}

func TestPrometheusHandlerExposesMetrics(t *testing.T) {
	r := NewPrometheus()
	r.IncFlow(FlowFailed)

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `airtime_bot_airtime_flows_total{outcome="failed"} 1`) {
		t.Fatalf("expected flow counter in exposition, got:\n%s", rr.Body.String())
	}
}
