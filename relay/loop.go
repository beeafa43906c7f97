package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"lanebridge/lanes"
	"lanebridge/observability"
)

// ErrStalled is returned by Run when pending work exists but no nonce advanced
// for longer than the stall timeout. Supervisors restart the loop, typically
// against a different node.
var ErrStalled = errors.New("relay: lane made no progress within the stall timeout")

const (
	defaultPollInterval   = 3 * time.Second
	defaultRetryBackoff   = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultReconnectDelay = 10 * time.Second
	defaultStallTimeout   = 5 * time.Minute
	defaultMaxBatch       = 8

	// Per-lane backlog bounds assumed for the target chain when the
	// operator does not override them. They mirror the node defaults.
	defaultMaxRelayerEntries = 128
	defaultMaxUnconfirmed    = 8192
)

const (
	raceDelivery     = "delivery"
	raceConfirmation = "confirmation"
)

// Loop drives one lane in one direction: a delivery race pushing queued source
// messages to the target, and a confirmation race pushing the target's
// delivery acknowledgements back to the source. Both races run off the same
// poll tick; a full round trip needs one loop per direction.
type Loop struct {
	source SourceClient
	target TargetClient
	lane   lanes.LaneID

	log     *slog.Logger
	metrics *observability.RelayMetrics
	limiter *rate.Limiter

	pollInterval      time.Duration
	retryBackoff      time.Duration
	maxBackoff        time.Duration
	reconnectDelay    time.Duration
	stallTimeout      time.Duration
	maxBatch          uint64
	maxRelayerEntries uint64
	maxUnconfirmed    uint64
	now               func() time.Time

	// watermarks for stall detection
	lastProgress  time.Time
	bestDelivered lanes.Nonce
	bestConfirmed lanes.Nonce
}

// Option customises the loop instance.
type Option func(*Loop)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithRateLimit bounds proof submissions. The default is unlimited.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(l *Loop) { l.limiter = rate.NewLimiter(limit, burst) }
}

// WithPollInterval configures the race tick cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(l *Loop) {
		if interval > 0 {
			l.pollInterval = interval
		}
	}
}

// WithBackoff configures the retry backoff applied after failed steps. The
// backoff doubles per consecutive failure up to max.
func WithBackoff(base, max time.Duration) Option {
	return func(l *Loop) {
		if base > 0 {
			l.retryBackoff = base
		}
		if max > 0 {
			l.maxBackoff = max
		}
	}
}

// WithReconnectDelay configures the pause between connectivity probes.
func WithReconnectDelay(delay time.Duration) Option {
	return func(l *Loop) {
		if delay > 0 {
			l.reconnectDelay = delay
		}
	}
}

// WithStallTimeout configures how long pending work may sit without progress
// before Run gives up with ErrStalled. Zero disables stall detection.
func WithStallTimeout(timeout time.Duration) Option {
	return func(l *Loop) { l.stallTimeout = timeout }
}

// WithBatchSize caps how many messages one delivery submission may carry.
func WithBatchSize(size uint64) Option {
	return func(l *Loop) {
		if size > 0 {
			l.maxBatch = size
		}
	}
}

// WithLaneLimits sets the target chain's per-lane backlog bounds. The
// delivery race selects nonce ranges within them; submissions outside the
// bounds would only be rejected message-by-message at the target.
func WithLaneLimits(maxRelayerEntries, maxUnconfirmed uint64) Option {
	return func(l *Loop) {
		if maxRelayerEntries > 0 {
			l.maxRelayerEntries = maxRelayerEntries
		}
		if maxUnconfirmed > 0 {
			l.maxUnconfirmed = maxUnconfirmed
		}
	}
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Loop) {
		if clock != nil {
			l.now = clock
		}
	}
}

// NewLoop wires a relay loop for the lane.
func NewLoop(source SourceClient, target TargetClient, lane lanes.LaneID, opts ...Option) *Loop {
	l := &Loop{
		source:            source,
		target:            target,
		lane:              lane,
		log:               slog.Default().With("component", "relay", "lane", lane.String()),
		metrics:           observability.Relay(),
		limiter:           rate.NewLimiter(rate.Inf, 1),
		pollInterval:      defaultPollInterval,
		retryBackoff:      defaultRetryBackoff,
		maxBackoff:        defaultMaxBackoff,
		reconnectDelay:    defaultReconnectDelay,
		stallTimeout:      defaultStallTimeout,
		maxBatch:          defaultMaxBatch,
		maxRelayerEntries: defaultMaxRelayerEntries,
		maxUnconfirmed:    defaultMaxUnconfirmed,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls both chains and submits proofs until the context is cancelled, a
// client fails terminally, or the lane stalls.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.connect(ctx); err != nil {
		return err
	}
	l.lastProgress = l.now()

	backoff := l.retryBackoff
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pending, err := l.step(ctx)
		switch {
		case err == nil:
			backoff = l.retryBackoff
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			l.log.Warn("relay step failed", "err", err, "backoff", backoff.String())
			if !l.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, l.maxBackoff)
		}

		if l.stallTimeout > 0 && pending && l.now().Sub(l.lastProgress) > l.stallTimeout {
			return ErrStalled
		}
	}
}

// connect probes both chains, retrying with the reconnect delay until the
// context is cancelled.
func (l *Loop) connect(ctx context.Context) error {
	for {
		srcErr := l.source.Ping(ctx)
		tgtErr := l.target.Ping(ctx)
		if srcErr == nil && tgtErr == nil {
			return nil
		}
		l.log.Warn("chain connectivity probe failed", "source_err", srcErr, "target_err", tgtErr)
		if !l.sleep(ctx, l.reconnectDelay) {
			return ctx.Err()
		}
	}
}

// step runs one round of both races. It reports whether work is still pending
// and updates the progress watermarks.
func (l *Loop) step(ctx context.Context) (pending bool, err error) {
	generated, err := l.source.LatestGeneratedNonce(ctx, l.lane)
	if err != nil {
		return false, err
	}
	relayersState, err := l.target.UnrewardedRelayersState(ctx, l.lane)
	if err != nil {
		return false, err
	}
	delivered := relayersState.LastDeliveredNonce
	confirmed, err := l.source.LatestConfirmedReceivedNonce(ctx, l.lane)
	if err != nil {
		return false, err
	}

	l.metrics.UpdateNonces(l.lane.String(), uint64(generated), uint64(delivered))
	// each watermark advances independently and only forward; a lagging
	// node re-serving an old nonce must not count as progress
	if delivered > l.bestDelivered {
		l.bestDelivered = delivered
		l.lastProgress = l.now()
	}
	if confirmed > l.bestConfirmed {
		l.bestConfirmed = confirmed
		l.lastProgress = l.now()
	}

	if generated > delivered {
		if begin, end, ok := l.selectDeliveryRange(generated, delivered, relayersState); ok {
			if err := l.deliver(ctx, begin, end, relayersState); err != nil {
				return true, err
			}
		}
	}
	if delivered > confirmed {
		if err := l.confirm(ctx, relayersState); err != nil {
			return true, err
		}
	}
	return generated > delivered || delivered > confirmed, nil
}

// selectDeliveryRange picks the nonce range for the next delivery submission,
// staying inside the target lane's backlog bounds. A range the target would
// reject message-by-message is never submitted: a saturated lane waits for
// the confirmation race to clear it.
func (l *Loop) selectDeliveryRange(generated, delivered lanes.Nonce, relayersState lanes.UnrewardedRelayersState) (lanes.Nonce, lanes.Nonce, bool) {
	if relayersState.UnrewardedRelayerEntries >= l.maxRelayerEntries {
		l.log.Debug("target relayer entries saturated, delivery deferred",
			"entries", relayersState.UnrewardedRelayerEntries)
		return 0, 0, false
	}
	begin := delivered + 1
	end := min(generated, delivered+lanes.Nonce(l.maxBatch))
	// the target rejects nonces further than maxUnconfirmed past its last
	// confirmed nonce
	lastConfirmed := delivered - lanes.Nonce(relayersState.TotalMessages)
	end = min(end, lastConfirmed+lanes.Nonce(l.maxUnconfirmed))
	if end < begin {
		l.log.Debug("target unconfirmed backlog saturated, delivery deferred",
			"unconfirmed", relayersState.TotalMessages)
		return 0, 0, false
	}
	return begin, end, true
}

// deliver runs one delivery race step: prove the selected batch and submit it
// to the target. Progress is accounted from the target's nonce watermarks,
// not from submission acceptance.
func (l *Loop) deliver(ctx context.Context, begin, end lanes.Nonce, relayersState lanes.UnrewardedRelayersState) error {
	start := l.now()
	// bundling the outbound lane state lets the target clear relayer entries
	// that the source has already confirmed
	includeState := relayersState.UnrewardedRelayerEntries > 0

	proof, err := l.source.ProveMessages(ctx, l.lane, begin, end, includeState)
	if err != nil {
		return err
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	err = l.target.SubmitMessagesProof(ctx, proof)
	l.metrics.ObserveStep(l.lane.String(), raceDelivery, l.now().Sub(start))
	switch {
	case err == nil:
		l.metrics.RecordSubmission(l.lane.String(), raceDelivery, "ok")
		l.log.Info("submitted messages", "begin", uint64(begin), "end", uint64(end))
		return nil
	case IsStale(err):
		// another relayer raced us to it
		l.metrics.RecordSubmission(l.lane.String(), raceDelivery, "stale")
		return nil
	default:
		l.metrics.RecordSubmission(l.lane.String(), raceDelivery, "error")
		return err
	}
}

// confirm runs one confirmation race step: prove the target's inbound lane
// state and submit it to the source.
func (l *Loop) confirm(ctx context.Context, relayersState lanes.UnrewardedRelayersState) error {
	start := l.now()
	proof, err := l.target.ProveMessagesReceiving(ctx, l.lane)
	if err != nil {
		return err
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	err = l.source.SubmitMessagesReceivingProof(ctx, proof, relayersState)
	l.metrics.ObserveStep(l.lane.String(), raceConfirmation, l.now().Sub(start))
	switch {
	case err == nil:
		l.metrics.RecordSubmission(l.lane.String(), raceConfirmation, "ok")
		l.log.Info("submitted delivery confirmation", "last_delivered_nonce", uint64(relayersState.LastDeliveredNonce))
		return nil
	case IsStale(err):
		l.metrics.RecordSubmission(l.lane.String(), raceConfirmation, "stale")
		return nil
	default:
		l.metrics.RecordSubmission(l.lane.String(), raceConfirmation, "error")
		return err
	}
}

// sleep pauses for d, returning false if the context was cancelled first.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
