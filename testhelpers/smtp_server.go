package testhelpers

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
)

type ReceivedMail struct {
	Username string
	From     string
	To       []string
	Data     string
}

// SMTPServer is a minimal plain-text SMTP server on a loopback port. It
// speaks enough of RFC 5321 for net/smtp: EHLO, AUTH PLAIN, MAIL, RCPT,
// DATA, RSET, NOOP and QUIT.
type SMTPServer struct {
	listener net.Listener
	wg       sync.WaitGroup

	mu             sync.Mutex
	messages       []ReceivedMail
	connections    int
	refuseNext     int
	authReply      string
	recipientReply string
}

func NewSMTPServer() *SMTPServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	FailOnError("Could not listen for smtp", err)
	s := &SMTPServer{listener: listener}
	s.wg.Add(1)
	go s.serve()
	return s
}

func (s *SMTPServer) Host() string {
	return "127.0.0.1"
}

func (s *SMTPServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *SMTPServer) Settings(recipient string) SMTPSettings {
	return SMTPSettings{Host: s.Host(), Port: s.Port(), Recipient: recipient}
}

// RefuseNextConnections answers the next n connections with 421 and hangs up.
func (s *SMTPServer) RefuseNextConnections(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuseNext = n
}

// RejectAuth makes every AUTH command fail with reply, e.g. "535 5.7.8 bad credentials".
func (s *SMTPServer) RejectAuth(reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authReply = reply
}

// RejectRecipients makes every RCPT command fail with reply.
func (s *SMTPServer) RejectRecipients(reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipientReply = reply
}

func (s *SMTPServer) Messages() []ReceivedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceivedMail{}, s.messages...)
}

func (s *SMTPServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

func (s *SMTPServer) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *SMTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { _ = conn.Close() }()
			s.handle(textproto.NewConn(conn))
		}()
	}
}

func (s *SMTPServer) handle(conn *textproto.Conn) {
	s.mu.Lock()
	s.connections++
	refuse := s.refuseNext > 0
	if refuse {
		s.refuseNext--
	}
	s.mu.Unlock()

	if refuse {
		_ = conn.PrintfLine("421 4.3.2 service not available")
		return
	}
	_ = conn.PrintfLine("220 localhost ESMTP test server")

	var mail ReceivedMail
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO", "HELO":
			_ = conn.PrintfLine("250-localhost greets %s", arg)
			_ = conn.PrintfLine("250-8BITMIME")
			_ = conn.PrintfLine("250 AUTH PLAIN")
		case "AUTH":
			if reply := s.reply(&s.authReply); reply != "" {
				_ = conn.PrintfLine("%s", reply)
				continue
			}
			mail.Username = plainUsername(arg)
			_ = conn.PrintfLine("235 2.7.0 authentication successful")
		case "MAIL":
			mail.From = address(arg)
			_ = conn.PrintfLine("250 2.1.0 ok")
		case "RCPT":
			if reply := s.reply(&s.recipientReply); reply != "" {
				_ = conn.PrintfLine("%s", reply)
				continue
			}
			mail.To = append(mail.To, address(arg))
			_ = conn.PrintfLine("250 2.1.5 ok")
		case "DATA":
			_ = conn.PrintfLine("354 end data with <CR><LF>.<CR><LF>")
			data, err := conn.ReadDotBytes()
			if err != nil {
				return
			}
			mail.Data = string(data)
			s.mu.Lock()
			s.messages = append(s.messages, mail)
			s.mu.Unlock()
			mail = ReceivedMail{Username: mail.Username}
			_ = conn.PrintfLine("250 2.0.0 queued")
		case "RSET":
			mail = ReceivedMail{Username: mail.Username}
			_ = conn.PrintfLine("250 2.0.0 ok")
		case "NOOP":
			_ = conn.PrintfLine("250 2.0.0 ok")
		case "QUIT":
			_ = conn.PrintfLine("221 2.0.0 bye")
			return
		default:
			_ = conn.PrintfLine("502 5.5.2 command not recognized")
		}
	}
}

func (s *SMTPServer) reply(field *string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *field
}

// address extracts the mailbox from "FROM:<a@b>" or "TO:<a@b>".
func address(arg string) string {
	start := strings.Index(arg, "<")
	end := strings.LastIndex(arg, ">")
	if start < 0 || end <= start {
		return arg
	}
	return arg[start+1 : end]
}

func plainUsername(arg string) string {
	_, encoded, ok := strings.Cut(arg, " ")
	if !ok {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	parts := strings.Split(string(decoded), "\x00")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

func (m ReceivedMail) String() string {
	return fmt.Sprintf("%s -> %s (%s bytes)", m.From, strings.Join(m.To, ","), strconv.Itoa(len(m.Data)))
}
