package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/healthmonitor/agent/models"
)

// BuildMessage renders msg as an RFC 5322 document with a quoted-printable
// UTF-8 body.
func BuildMessage(msg models.Message, date time.Time, messageID string) []byte {
	var buf bytes.Buffer
	header := func(name, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}
	header("From", msg.From)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("Importance", "High")
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	w := quotedprintable.NewWriter(&buf)
	_, _ = w.Write([]byte(normalizeNewlines(msg.Body)))
	_ = w.Close()
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
