package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wamsg_webhook_events_total", Help: "Webhook events by type and result"},
		[]string{"event", "result"},
	)
	WebhookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wamsg_webhook_failures_total", Help: "Events written to the failure ledger"},
		[]string{"event"},
	)
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wamsg_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	CampaignCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wamsg_campaign_cycles_total", Help: "Worker poll cycles"},
		[]string{"result"},
	)
	CampaignSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wamsg_campaign_sends_total", Help: "Per-recipient send outcomes"},
		[]string{"result"},
	)
	SendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "wamsg_send_latency_seconds", Help: "Provider send latency"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(WebhookEvents, WebhookFailures, APIRequests, CampaignCycles, CampaignSends, SendLatency)
}
