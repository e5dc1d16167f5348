package campaign

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"wamsg/internal/domain"
	"wamsg/internal/observability"
	"wamsg/internal/providers/wasender"
	"wamsg/internal/store"
	"wamsg/internal/util"
)

const (
	// defaultPollInterval is the cadence between claim cycles.
	defaultPollInterval = 5 * time.Second
	// defaultSendConcurrency bounds the per-campaign send fan-out so a
	// campaign with thousands of recipients never opens thousands of
	// simultaneous outbound connections.
	defaultSendConcurrency = 5

	sendTimeout = 10 * time.Second
)

type Queue interface {
	ClaimPending(ctx context.Context) ([]store.Campaign, error)
	RecordOutcome(ctx context.Context, campaignID string, results []domain.RecipientResult) error
}

type Sender interface {
	SendText(ctx context.Context, req wasender.SendRequest) (wasender.SendResponse, int, []byte, error)
}

// Worker is a single logical task alternating between a poll wait and a
// processing burst. Multiple instances may run against the same queue; the
// queue's atomic claim is the only concurrency boundary between them.
type Worker struct {
	Queue       Queue
	Sender      Sender
	Interval    time.Duration
	Concurrency int
	Limiter     *rate.Limiter
	Breaker     *gobreaker.CircuitBreaker

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Start moves the worker from stopped to running. Calling Start on a
// running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		slog.Warn("worker already running")
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, w.stopCh, w.doneCh)
}

// Stop is safe to call from outside the loop. The loop finishes its current
// in-flight cycle, then exits at the next polling boundary; Stop blocks
// until it has.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()
	<-done
}

// Running reports the state machine's current state.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	interval := w.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("campaign worker started", "interval", interval)
	w.cycle(ctx)

	for {
		select {
		case <-stopCh:
			slog.Info("campaign worker stopped")
			return
		case <-ctx.Done():
			slog.Info("campaign worker context canceled")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle claims pending campaigns and drives each to a terminal state. Any
// cycle-level failure is logged and absorbed; the next tick retries.
func (w *Worker) cycle(ctx context.Context) {
	campaigns, err := w.Queue.ClaimPending(ctx)
	if err != nil {
		slog.Error("claim pending campaigns failed", "err", err)
		observability.CampaignCycles.WithLabelValues("error").Inc()
		return
	}
	observability.CampaignCycles.WithLabelValues("ok").Inc()
	if len(campaigns) == 0 {
		return
	}

	for _, c := range campaigns {
		start := time.Now()
		results := w.processCampaign(ctx, c)
		if err := w.Queue.RecordOutcome(ctx, c.ID, results); err != nil {
			slog.Error("record campaign outcome failed", "campaign_id", c.ID, "err", err)
			continue
		}
		slog.Info("campaign processed",
			"campaign_id", c.ID,
			"recipients", len(c.Recipients),
			"attempted", len(results),
			"duration", time.Since(start),
		)
	}
}

// processCampaign fans sends out over a bounded worker pool and collects
// per-recipient outcomes. A nil result set means the batch could not be
// attempted at all (provider protection tripped before any send), which the
// queue service records as a failed campaign.
func (w *Worker) processCampaign(ctx context.Context, c store.Campaign) []domain.RecipientResult {
	workers := w.Concurrency
	if workers <= 0 {
		workers = defaultSendConcurrency
	}
	if workers > len(c.Recipients) {
		workers = len(c.Recipients)
	}

	type indexed struct {
		idx int
		r   domain.Recipient
	}
	jobs := make(chan indexed)
	results := make([]domain.RecipientResult, len(c.Recipients))
	var attempted int64
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, wasAttempted := w.sendOne(ctx, c, j.r)
				mu.Lock()
				results[j.idx] = res
				if wasAttempted {
					attempted++
				}
				mu.Unlock()
			}
		}()
	}

	for i, r := range c.Recipients {
		jobs <- indexed{idx: i, r: r}
	}
	close(jobs)
	wg.Wait()

	if attempted == 0 && len(c.Recipients) > 0 {
		return nil
	}
	return results
}

// sendOne delivers to a single recipient. One attempt per cycle: transient
// failures are recorded per recipient, never retried until the campaign is
// re-enqueued. The second return reports whether a send was actually
// attempted (breaker-open short circuits are not attempts).
func (w *Worker) sendOne(ctx context.Context, c store.Campaign, r domain.Recipient) (domain.RecipientResult, bool) {
	result := domain.RecipientResult{Phone: r.Phone, AttemptedAt: util.NowUTC()}

	body := util.RenderTemplate(c.Template, map[string]string{
		"name":  r.Name,
		"phone": r.Phone,
	})
	req := wasender.SendRequest{
		To:        r.Phone,
		Text:      body,
		MediaURL:  c.MediaURL,
		MediaType: c.MediaType,
	}

	if w.Limiter != nil {
		if err := w.Limiter.Wait(ctx); err != nil {
			result.Error = "rate limiter: " + err.Error()
			observability.CampaignSends.WithLabelValues("rate_limited").Inc()
			return result, false
		}
	}

	start := time.Now()
	status, err := w.executeSend(ctx, req)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		result.Error = "provider circuit open"
		observability.CampaignSends.WithLabelValues("cb_open").Inc()
		return result, false
	}
	observability.SendLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		result.Error = err.Error()
		// One attempt per cycle: transient failures are tagged so the
		// retry endpoint can tell them apart from permanent rejections.
		if wasender.ShouldRetry(err, status) {
			result.Error = "transient: " + result.Error
		}
		observability.CampaignSends.WithLabelValues("error").Inc()
		return result, true
	}
	result.OK = true
	observability.CampaignSends.WithLabelValues("ok").Inc()
	return result, true
}

func (w *Worker) executeSend(ctx context.Context, req wasender.SendRequest) (int, error) {
	call := func() (any, error) {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		_, status, _, err := w.Sender.SendText(sendCtx, req)
		return status, err
	}

	if w.Breaker == nil {
		v, err := call()
		status, _ := v.(int)
		return status, err
	}
	v, err := w.Breaker.Execute(call)
	status, _ := v.(int)
	return status, err
}
