package testhelpers

import (
	"fmt"
	"os"
	"path/filepath"
)

func LoadFile(filename string) string {
	file, err := os.ReadFile(filename)
	if err != nil {
		file, err = os.ReadFile("testdata/" + filename)
	}
	FailOnError("Could not read file", err)
	return string(file)
}

// WriteFile writes content into dir and returns the full path.
func WriteFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	FailOnError("Could not write file", os.WriteFile(path, []byte(content), 0o600))
	return path
}

// SMTPSettings are the [email] values a test points at its SMTP server.
type SMTPSettings struct {
	Host      string
	Port      int
	Recipient string
}

func DefaultSMTPSettings() SMTPSettings {
	return SMTPSettings{Host: "127.0.0.1", Port: 2525, Recipient: "ops@example.com"}
}

// INIConfig renders a complete configuration in the INI format. general
// holds the [general] body so tests choose which thresholds are set.
func INIConfig(general string, checkFrequency, retryDelay, cooldown int, smtp SMTPSettings) string {
	return fmt.Sprintf(`[general]
device_name = test-host
%s

[time]
check_frequency = %d
email_retry_delay = %d
alert_cooldown_time = %d

[email]
smtp_server = %s
smtp_port = %d
smtp_username = monitor@example.com
smtp_password = hunter2
starttls = false
send_test_email = false
recipient = %s
`, general, checkFrequency, retryDelay, cooldown, smtp.Host, smtp.Port, smtp.Recipient)
}
