package console

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/terminfo"
	gossh "golang.org/x/crypto/ssh"

	"scadalink/internal/logging"
)

// Config holds the operator console's SSH server settings.
type Config struct {
	Addr        string
	Password    string
	HostKeyPath string
}

// Server accepts SSH connections and gives each one an independent
// terminal UI bound to the shared ControlSurface.
type Server struct {
	cfg       Config
	cs        ControlSurface
	sshConfig *gossh.ServerConfig
	listener  net.Listener

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	sessions map[*session]struct{}
	sessMu   sync.RWMutex
}

type session struct {
	channel gossh.Channel
	conn    *gossh.ServerConn
	tty     *channelTty
	term    string
	width   int
	height  int

	closeMu sync.Mutex
	closed  bool
}

func (s *session) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tty != nil {
		s.tty.Stop()
	}
	s.channel.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
	s.channel.CloseWrite()
	return s.channel.Close()
}

// NewServer constructs a Server over cfg, driving cs on every session.
func NewServer(cfg Config, cs ControlSurface) *Server {
	return &Server{
		cfg:      cfg,
		cs:       cs,
		stopCh:   make(chan struct{}),
		sessions: make(map[*session]struct{}),
	}
}

// Start opens the listener and begins accepting sessions in the
// background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.cfg.Password == "" {
		return fmt.Errorf("console: no password configured")
	}

	hostKey, err := hostKeySigner(s.cfg.HostKeyPath)
	if err != nil {
		return fmt.Errorf("console: host key: %w", err)
	}

	sshConfig := &gossh.ServerConfig{
		PasswordCallback: func(_ gossh.ConnMetadata, pass []byte) (*gossh.Permissions, error) {
			if subtle.ConstantTimeCompare(pass, []byte(s.cfg.Password)) == 1 {
				return nil, nil
			}
			return nil, fmt.Errorf("console: invalid password")
		},
	}
	sshConfig.AddHostKey(hostKey)
	s.sshConfig = sshConfig

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("console: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener
	s.running = true

	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open session.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	s.sessMu.RLock()
	for sess := range s.sessions {
		go sess.Close()
	}
	s.sessMu.RUnlock()
}

// SessionCount returns the number of currently open SSH sessions.
func (s *Server) SessionCount() int {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				logging.Debug("CONSOLE", "accept error: %v", err)
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sshConn, chans, reqs, err := gossh.NewServerConn(conn, s.sshConfig)
	if err != nil {
		logging.Debug("CONSOLE", "handshake failed from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	go gossh.DiscardRequests(reqs)

	for ch := range chans {
		if ch.ChannelType() != "session" {
			ch.Reject(gossh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(sshConn, channel, requests)
	}
}

func (s *Server) handleSession(conn *gossh.ServerConn, channel gossh.Channel, requests <-chan *gossh.Request) {
	sess := &session{channel: channel, conn: conn, width: 80, height: 24}
	ptyReady := false

	for req := range requests {
		switch req.Type {
		case "pty-req":
			term, width, height, ok := parsePtyRequest(req.Payload)
			if !ok {
				if req.WantReply {
					req.Reply(false, nil)
				}
				continue
			}
			sess.term, sess.width, sess.height = term, width, height
			ptyReady = true
			if req.WantReply {
				req.Reply(true, nil)
			}
		case "shell":
			if req.WantReply {
				req.Reply(true, nil)
			}
			if ptyReady {
				go s.runSession(sess)
			}
		case "window-change":
			width, height, ok := parseWindowChange(req.Payload)
			if ok && sess.tty != nil {
				sess.tty.SetWindowSize(width, height)
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
	sess.Close()
}

func (s *Server) runSession(sess *session) {
	tty := newChannelTty(sess.channel, sess.term, sess.width, sess.height)
	sess.tty = tty

	s.sessMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessMu.Unlock()
	defer func() {
		s.sessMu.Lock()
		delete(s.sessions, sess)
		s.sessMu.Unlock()
	}()

	screen, err := createScreen(tty)
	if err != nil {
		logging.Debug("CONSOLE", "screen creation failed: %v", err)
		sess.Close()
		return
	}

	app := NewApp(screen, s.cs)
	finalized := false
	app.SetOnDisconnect(func() {
		finalized = true
		sess.channel.Write([]byte("\x1b[?1049l\x1b[?25h\x1b[0m"))
		tty.Close()
	})

	if err := app.Run(); err != nil {
		logging.Debug("CONSOLE", "session error: %v", err)
	}
	if !finalized {
		screen.Fini()
	}
	sess.conn.Close()
}

func createScreen(tty *channelTty) (tcell.Screen, error) {
	ti, err := terminfo.LookupTerminfo(tty.Term())
	if err != nil {
		ti, err = terminfo.LookupTerminfo("xterm-256color")
		if err != nil {
			return nil, fmt.Errorf("terminfo lookup: %w", err)
		}
	}
	return tcell.NewTerminfoScreenFromTtyTerminfo(tty, ti)
}

func parsePtyRequest(payload []byte) (term string, width, height int, ok bool) {
	if len(payload) < 4 {
		return "", 0, 0, false
	}
	termLen := binary.BigEndian.Uint32(payload[0:4])
	if uint32(len(payload)) < 4+termLen+16 {
		return "", 0, 0, false
	}
	term = string(payload[4 : 4+termLen])
	offset := 4 + termLen
	w := binary.BigEndian.Uint32(payload[offset : offset+4])
	h := binary.BigEndian.Uint32(payload[offset+4 : offset+8])
	return term, int(w), int(h), true
}

func parseWindowChange(payload []byte) (width, height int, ok bool) {
	if len(payload) < 8 {
		return 0, 0, false
	}
	w := binary.BigEndian.Uint32(payload[0:4])
	h := binary.BigEndian.Uint32(payload[4:8])
	return int(w), int(h), true
}

// hostKeySigner loads the host key at path, generating and persisting a
// fresh ED25519 key the first time it is needed.
func hostKeySigner(path string) (gossh.Signer, error) {
	if _, err := os.Stat(path); err == nil {
		return loadHostKey(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return generateHostKey(path)
}

func loadHostKey(path string) (gossh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return gossh.ParsePrivateKey(data)
}

func generateHostKey(path string) (gossh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := gossh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, err
	}
	return gossh.NewSignerFromKey(priv)
}
