package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"coldstorage/internal/anomaly/application"
)

// Clock provides time for cooldown bookkeeping.
type Clock interface {
	Now() time.Time
}

// DashboardURLResolver returns a chart link for a sensor when available.
type DashboardURLResolver func(sensorID string) string

type sendRecord struct {
	at   time.Time
	hash string
}

type openAlert struct {
	event application.AlertEvent
	timer *time.Timer
}

// Notifier renders alert events and sends them through a channel. An alert
// still open after the escalation delay is sent again as escalated.
type Notifier struct {
	channel        Channel
	template       *Template
	maxTemp        float64
	escalation     time.Duration
	clock          Clock
	logger         *log.Logger
	cooldown       time.Duration
	dedupeWindow   time.Duration
	dashboardURL   DashboardURLResolver
	requestTimeout time.Duration

	mu   sync.Mutex
	open map[string]*openAlert
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures the escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithRequestTimeout bounds escalation sends.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same sensor and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithStorageMaxTemp sets the limit quoted in over-limit warnings.
func WithStorageMaxTemp(limit float64) Option {
	return func(n *Notifier) {
		n.maxTemp = limit
	}
}

// WithDashboardURL injects a chart link resolver.
func WithDashboardURL(resolver DashboardURLResolver) Option {
	return func(n *Notifier) {
		if resolver != nil {
			n.dashboardURL = resolver
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		maxTemp:        4,
		clock:          systemClock{},
		logger:         log.Default(),
		open:           make(map[string]*openAlert),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, event application.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	n.dispatch(ctx, event.Type, event)

	switch event.Type {
	case application.AlertRaised:
		n.scheduleEscalation(event)
	case application.AlertCleared:
		n.cancelEscalation(event.SensorID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	open := n.open
	n.open = make(map[string]*openAlert)
	n.mu.Unlock()
	for _, alert := range open {
		if alert.timer != nil {
			alert.timer.Stop()
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, event application.AlertEvent) {
	content, err := n.template.Render(n.buildTemplateData(eventType, event))
	if err != nil {
		n.logger.Printf("alert notifier: render error: %v", err)
		return
	}
	if !n.shouldSend(event.SensorID, eventType, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.Printf("alert notifier: send error: %v", err)
		return
	}
	n.markSent(event.SensorID, eventType, content)
}

func (n *Notifier) scheduleEscalation(event application.AlertEvent) {
	if n.escalation <= 0 || event.SensorID == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.open[event.SensorID]; ok && existing.timer != nil {
		existing.timer.Stop()
	}
	alert := &openAlert{event: event}
	alert.timer = time.AfterFunc(n.escalation, func() {
		n.runEscalation(event.SensorID, alert)
	})
	n.open[event.SensorID] = alert
}

func (n *Notifier) cancelEscalation(sensorID string) {
	n.mu.Lock()
	alert := n.open[sensorID]
	delete(n.open, sensorID)
	n.mu.Unlock()
	if alert != nil && alert.timer != nil {
		alert.timer.Stop()
	}
}

func (n *Notifier) runEscalation(sensorID string, alert *openAlert) {
	n.mu.Lock()
	current, ok := n.open[sensorID]
	if !ok || current != alert {
		n.mu.Unlock()
		return
	}
	delete(n.open, sensorID)
	n.mu.Unlock()

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	n.dispatch(ctx, "escalated", alert.event)
}

func (n *Notifier) buildTemplateData(eventType string, event application.AlertEvent) TemplateData {
	dashboard := ""
	if n.dashboardURL != nil {
		dashboard = n.dashboardURL(event.SensorID)
	}
	return TemplateData{
		Sensor:         event.SensorID,
		Classification: string(event.Classification),
		Value:          formatFloat(event.Value),
		Upper:          formatFloat(event.Upper),
		Lower:          formatFloat(event.Lower),
		Level:          formatFloat(event.Level),
		SampleTime:     event.SampleAt.UTC().Format(time.RFC3339),
		BoundTime:      event.BoundAt.UTC().Format(time.RFC3339),
		OverLimit:      event.OverLimit,
		MaxTemp:        formatFloat(n.maxTemp),
		DashboardURL:   dashboard,
		Event:          eventType,
		EventLabel:     eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case application.AlertRaised:
		return "Excursion"
	case application.AlertCleared:
		return "Recovered"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (n *Notifier) shouldSend(sensorID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(sensorID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(sensorID, eventType, content string) {
	key := notificationKey(sensorID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(sensorID, eventType string) string {
	return sensorID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
