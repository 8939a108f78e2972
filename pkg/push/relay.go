// Package push turns raw push payloads into display notifications and
// resolves notification-click actions into navigation decisions.
package push

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Notification action identifiers.
const (
	ActionExplore = "explore"
	ActionClose   = "close"
)

var (
	pushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_push_notifications_total",
		Help: "Push payloads rendered into notifications",
	})

	clicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_push_clicks_total",
		Help: "Notification clicks by action",
	}, []string{"action"})
)

// Action is one button on a rendered notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is a render-ready display notification.
type Notification struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon"`
	Badge   string   `json:"badge"`
	Actions []Action `json:"actions"`
}

// ClickDecision tells the host what to do with a notification click.
type ClickDecision struct {
	// Navigate is true when an open client should be focused on URL, or a
	// new one opened at it. False means dismiss only.
	Navigate bool   `json:"navigate"`
	URL      string `json:"url,omitempty"`
}

// Relay renders push payloads and routes notification clicks.
type Relay struct {
	title         string
	dashboardPath string
	logger        zerolog.Logger
}

// NewRelay creates a push relay. title is the fixed notification title,
// dashboardPath the navigation target of the explore action.
func NewRelay(title, dashboardPath string, logger zerolog.Logger) *Relay {
	return &Relay{
		title:         title,
		dashboardPath: dashboardPath,
		logger:        logger,
	}
}

// Render builds a notification from a free-text push payload. An empty
// payload still renders, with a default body.
func (r *Relay) Render(payload []byte) Notification {
	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = "You have a new update"
	}

	pushesTotal.Inc()
	r.logger.Debug().Int("payload_bytes", len(payload)).Msg("Rendering push notification")

	return Notification{
		Title: r.title,
		Body:  body,
		Icon:  "/icons/icon-192x192.png",
		Badge: "/icons/icon-72x72.png",
		Actions: []Action{
			{Action: ActionExplore, Title: "View Dashboard", Icon: "/icons/icon-96x96.png"},
			{Action: ActionClose, Title: "Close", Icon: "/icons/icon-96x96.png"},
		},
	}
}

// Route resolves a clicked action. The explore action, and a click on the
// notification body itself (empty action), navigate to the dashboard;
// anything else dismisses.
func (r *Relay) Route(action string) ClickDecision {
	label := action
	if label == "" {
		label = "body"
	}
	clicksTotal.WithLabelValues(label).Inc()
	r.logger.Debug().Str("action", label).Msg("Notification click")

	switch action {
	case ActionExplore, "":
		return ClickDecision{Navigate: true, URL: r.dashboardPath}
	default:
		return ClickDecision{}
	}
}
