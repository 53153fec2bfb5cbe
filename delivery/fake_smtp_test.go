package delivery

import (
	"bufio"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type smtpTxn struct {
	helo  string
	from  string
	rcpts []string
	data  string
}

// fakeSMTP is a minimal SMTP server speaking just enough of the protocol
// for net/smtp clients.
type fakeSMTP struct {
	ln net.Listener
	wg sync.WaitGroup

	authUser   string
	authPass   string
	rejectRcpt map[string]bool

	mu       sync.Mutex
	txns     []smtpTxn
	sessions int
}

func newFakeSMTP(t *testing.T, configure ...func(*fakeSMTP)) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	s := &fakeSMTP{ln: ln, rejectRcpt: make(map[string]bool)}
	for _, fn := range configure {
		fn(s)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serve(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) transactions() []smtpTxn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]smtpTxn(nil), s.txns...)
}

func (s *fakeSMTP) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *fakeSMTP) serve(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	reply := func(lines ...string) {
		for _, line := range lines {
			bw.WriteString(line + "\r\n")
		}
		bw.Flush()
	}

	reply("220 fake.test ESMTP")
	var helo string
	var txn smtpTxn
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "EHLO "):
			helo = line[5:]
			if s.authUser != "" {
				reply("250-fake.test", "250 AUTH PLAIN")
			} else {
				reply("250 fake.test")
			}
		case strings.HasPrefix(upper, "HELO "):
			helo = line[5:]
			reply("250 fake.test")
		case strings.HasPrefix(upper, "AUTH PLAIN "):
			decoded, _ := base64.StdEncoding.DecodeString(strings.TrimSpace(line[len("AUTH PLAIN "):]))
			if string(decoded) == "\x00"+s.authUser+"\x00"+s.authPass {
				reply("235 2.7.0 Authentication successful")
			} else {
				reply("535 5.7.8 Authentication credentials invalid")
			}
		case line == "*":
			reply("501 5.7.0 Authentication cancelled")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			txn = smtpTxn{helo: helo, from: trimPath(line[len("MAIL FROM:"):])}
			reply("250 2.1.0 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			addr := trimPath(line[len("RCPT TO:"):])
			if s.rejectRcpt[addr] {
				reply("550 5.1.1 No such user")
				continue
			}
			txn.rcpts = append(txn.rcpts, addr)
			reply("250 2.1.5 OK")
		case upper == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			data, err := readData(br)
			if err != nil {
				return
			}
			txn.data = data
			s.mu.Lock()
			s.txns = append(s.txns, txn)
			s.mu.Unlock()
			txn = smtpTxn{}
			reply("250 2.0.0 Queued")
		case upper == "RSET":
			txn = smtpTxn{}
			reply("250 OK")
		case upper == "NOOP":
			reply("250 OK")
		case upper == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 5.5.2 Command not recognized")
		}
	}
}

func readData(br *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return "", err
		}
		if line == ".\r\n" {
			return b.String(), nil
		}
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}
		b.WriteString(line)
	}
}

func trimPath(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, ' '); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSuffix(strings.TrimPrefix(v, "<"), ">")
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
