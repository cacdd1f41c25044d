package dispatcher

import (
	"fmt"
	"math"
	"strings"

	"github.com/healthmonitor/agent/models"
	"github.com/healthmonitor/agent/monitor/config"
)

const (
	TestEmailSubject = "System Health Monitor Test Email from %s"
	TestEmailBody    = "This is a test email sent by the system health monitor on %s. If you're reading this, then the email functionality is working correctly."
)

// RenderAlert fills the templates once. Every attempt for the decision
// sends the returned message unchanged.
func RenderAlert(decision models.AlertDecision, conf *config.Config) models.Message {
	replacer := strings.NewReplacer(
		"{device_name}", DeviceLabel(decision.Kind, decision.Device, conf.General.DeviceName),
		"{resource_name}", decision.Kind.DisplayName(),
		"{threshold}", models.FormatNumber(decision.Threshold),
		"{value}", models.FormatNumber(round(decision.Value)),
		"{unit}", unitSymbol(decision.Unit),
		"{device}", decision.Device,
	)
	return models.Message{
		From:    conf.Email.From(),
		To:      conf.Email.Recipient,
		Subject: replacer.Replace(conf.Email.SubjectTemplate),
		Body:    replacer.Replace(conf.Email.BodyTemplate),
	}
}

func RenderTestEmail(conf *config.Config) models.Message {
	return models.Message{
		From:    conf.Email.From(),
		To:      conf.Email.Recipient,
		Subject: fmt.Sprintf(TestEmailSubject, conf.General.DeviceName),
		Body:    fmt.Sprintf(TestEmailBody, conf.General.DeviceName),
	}
}

// DeviceLabel names the host for host-wide kinds and "host (device)" for
// disks and GPUs.
func DeviceLabel(kind models.ResourceKind, device, host string) string {
	if kind.HostWide() || device == "" || device == host {
		return host
	}
	return fmt.Sprintf("%s (%s)", host, device)
}

func unitSymbol(unit string) string {
	switch unit {
	case models.UnitPercentage:
		return "%"
	case models.UnitCelsius:
		return "°C"
	default:
		return unit
	}
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
