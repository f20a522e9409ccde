// Package notification delivers signal lifecycle alerts to external
// channels. Delivery is best-effort and must never block or fail the
// signal pipeline.
package notification

import (
	"context"
	"fmt"
	"log"

	"signal-enginev1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// EmissionAlert builds the alert announcing a freshly emitted signal.
func EmissionAlert(sig *model.Signal) Alert {
	title := fmt.Sprintf("%s signal on %s", sig.Type, sig.Pair)
	if sig.MartingaleStep > 0 {
		title = fmt.Sprintf("%s (martingale step %d)", title, sig.MartingaleStep)
	}
	return Alert{
		Level: AlertInfo,
		Title: title,
		Message: fmt.Sprintf("entry %.4f, confidence %d%%, resolves in %dm",
			sig.Price, sig.Confidence, sig.Timeframe),
	}
}

// ResultAlert builds the alert for a resolved signal.
func ResultAlert(sig *model.Signal) Alert {
	level := AlertInfo
	if sig.Result == model.ResultLoss {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("%s on %s: %s", sig.Type, sig.Pair, sig.Result),
		Message: fmt.Sprintf("entry %.4f, P/L %.2f%%, confidence was %d%%",
			sig.Price, sig.ProfitLoss, sig.Confidence),
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
