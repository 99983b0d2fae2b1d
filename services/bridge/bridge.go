// bridge/bridge.go

// Package bridge links the in-process bus to a remote peer over a framed
// byte stream (UART between host and controller, a pipe in tests). Local
// messages matching the export patterns are forwarded to the peer, peer
// frames matching the import patterns are published locally, and the peer
// can add exports of its own with subscribe frames.
package bridge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"motorcode-go/bus"
	"motorcode-go/types"
	"motorcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

var (
	topicState  = bus.Topic{"bridge", "state"}
	topicInfo   = bus.Topic{"bridge", "info"}
	topicConfig = bus.Topic{"config", "bridge"}
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Start runs the bridge until ctx ends. The link comes up once a config
// arrives on config/bridge and follows every config published after that.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &service{conn: conn}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Config arrives as JSON on config/bridge.
type Config struct {
	Transport TransportConfig `json:"transport"`

	// Export lists local topic patterns forwarded to the peer. Import lists
	// patterns the peer may publish here; on connect the bridge also asks
	// the peer to forward them with subscribe frames.
	Export []string `json:"export,omitempty"`
	Import []string `json:"import,omitempty"`

	PingMs int `json:"ping_ms,omitempty"`
}

func (c Config) withDefaults() Config {
	if len(c.Export) == 0 {
		c.Export = []string{"motor/telemetry", "motor/state", "motor/info"}
	}
	if len(c.Import) == 0 {
		c.Import = []string{"motor/control/#", "config/#"}
	}
	if c.PingMs <= 0 {
		c.PingMs = 5000
	}
	return c
}

// TransportConfig picks the link type by name. Only the section matching
// Type is read; the others may stay nil.
type TransportConfig struct {
	Type   string        `json:"type"`
	UART   *UARTConfig   `json:"uart,omitempty"`
	Serial *SerialConfig `json:"serial,omitempty"`
}

// SerialConfig names a host-side serial device. The bridge itself has no
// host transport; a main registers one via RegisterTransport and reads
// this section.
type SerialConfig struct {
	Port string `json:"port"`
	Baud int    `json:"baud,omitempty"`
}

// UARTConfig is handed through to the injected UARTDial. Pin numbers use
// the platform's own numbering.
type UARTConfig struct {
	Baud  int `json:"baud"`
	RxPin int `json:"rx_pin"`
	TxPin int `json:"tx_pin"`
}

// parseConfig accepts the shapes a config publish can arrive in: a Config
// value from in-process callers, raw JSON bytes or string off the wire, or
// an already-decoded object map.
func parseConfig(p any) (Config, error) {
	var raw []byte
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return Config{}, err
		}
		raw = b
	default:
		return Config{}, fmt.Errorf("config payload %T not decodable", p)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Service loop
// -----------------------------------------------------------------------------

type service struct {
	conn *bus.Connection

	mu         sync.Mutex
	cancelLink context.CancelFunc
}

// run waits for config and supervises one link instance at a time.
func (s *service) run(ctx context.Context) {
	cfgs := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgs)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.haltLink()
			return
		case msg, ok := <-cfgs.Channel():
			if !ok {
				s.publishState("fault", "config_subscription_closed", nil)
				return
			}
			cfg, err := parseConfig(msg.Payload)
			if err != nil {
				s.publishState("fault", "config_decode_failed", err)
				continue
			}
			s.applyConfig(ctx, cfg.withDefaults())
		}
	}
}

// haltLink cancels the running link, if any.
func (s *service) haltLink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLink != nil {
		s.cancelLink()
		s.cancelLink = nil
	}
}

// applyConfig swaps the link over to cfg. A link already running is
// cancelled first so the transport is free to reopen.
func (s *service) applyConfig(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.cancelLink != nil {
		s.cancelLink()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelLink = cancel
	s.mu.Unlock()

	go s.superviseLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

// superviseLink dials cfg's transport and keeps redialling with exponential
// backoff until ctx ends or the peer closes the link cleanly.
func (s *service) superviseLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("fault", "transport_init_failed", err)
		return
	}
	s.publishInfo(tr, cfg)

	delay := expBackoff(250*time.Millisecond, 5*time.Second)
	for ctx.Err() == nil {
		rwc, err := tr.Open(ctx)
		if err != nil {
			d := delay()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v; next dial in %s", err, d))
			if !waitFor(ctx, d) {
				return
			}
			continue
		}

		s.publishState("running", "link_established", nil)
		err = s.serveLink(ctx, rwc, cfg)
		_ = rwc.Close()
		if err == nil {
			// The peer said goodbye; only fresh config restarts the link.
			if ctx.Err() == nil {
				s.publishState("idle", "link_closed", nil)
			}
			return
		}
		d := delay()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v; redial in %s", err, d))
		if !waitFor(ctx, d) {
			return
		}
	}
}

// serveLink owns one live link: a reader goroutine, a pump goroutine per
// exported pattern, and this loop as the only writer.
func (s *service) serveLink(ctx context.Context, rwc io.ReadWriteCloser, cfg Config) error {
	l := &link{
		conn:    s.conn,
		out:     make(chan Frame, 32),
		imports: parsePatterns(cfg.Import),
		exports: map[string]*bus.Subscription{},
	}
	defer l.dropExports()

	for _, p := range cfg.Export {
		l.addExport(p)
	}
	// Ask the peer to forward what this side may import.
	for _, p := range cfg.Import {
		l.enqueue(Frame{Type: FrameSub, Payload: []byte(p)})
	}

	rd := NewFrameReader(rwc)
	wr := NewFrameWriter(rwc)

	readErr := make(chan error, 1)
	go func() { readErr <- l.readLoop(rd) }()

	ping := time.NewTicker(time.Duration(cfg.PingMs) * time.Millisecond)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			// Tell the peer before going down; a loss here does not matter.
			_ = wr.WriteFrame(Frame{Type: FrameClose})
			return nil
		case err := <-readErr:
			return err
		case f := <-l.out:
			if err := wr.WriteFrame(f); err != nil {
				return err
			}
		case <-ping.C:
			if err := wr.WriteFrame(Frame{Type: FramePing}); err != nil {
				return err
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Link I/O
// -----------------------------------------------------------------------------

// WireMsg is the FramePub body: topic tokens, raw JSON payload, retained flag.
type WireMsg struct {
	Topic    []string        `json:"t"`
	Payload  json.RawMessage `json:"p,omitempty"`
	Retained bool            `json:"r,omitempty"`
}

type link struct {
	conn    *bus.Connection
	out     chan Frame
	imports [][]string

	mu      sync.Mutex
	exports map[string]*bus.Subscription
}

// enqueue hands a frame to the writer, dropping when the link cannot keep
// up. A slow peer must not stall bus callers.
func (l *link) enqueue(f Frame) {
	select {
	case l.out <- f:
	default:
	}
}

func (l *link) readLoop(rd *FrameReader) error {
	for {
		f, err := rd.ReadFrame()
		if err != nil {
			return err
		}
		switch f.Type {
		case FramePing:
			l.enqueue(Frame{Type: FramePong})
		case FramePong:
			// Liveness only; a dead peer surfaces as a write error.
		case FramePub:
			l.importPub(f.Payload)
		case FrameSub:
			l.addExport(string(f.Payload))
		case FrameUnsub:
			l.dropExport(string(f.Payload))
		case FrameClose:
			return nil
		default:
			// Unknown frame types are skipped so protocol additions stay
			// compatible with older peers.
		}
	}
}

func (l *link) importPub(body []byte) {
	var wm WireMsg
	if err := json.Unmarshal(body, &wm); err != nil {
		println("Warn: bridge: bad pub frame:", err.Error())
		return
	}
	if !l.importable(wm.Topic) {
		return
	}
	var payload any
	if len(wm.Payload) > 0 {
		if err := json.Unmarshal(wm.Payload, &payload); err != nil {
			println("Warn: bridge: bad pub payload:", err.Error())
			return
		}
	}
	l.conn.Publish(l.conn.NewMessage(patternTopic(wm.Topic), payload, wm.Retained))
}

func (l *link) importable(topic []string) bool {
	for _, pat := range l.imports {
		if matchTokens(pat, topic) {
			return true
		}
	}
	return false
}

func (l *link) addExport(pattern string) {
	l.mu.Lock()
	if _, dup := l.exports[pattern]; dup {
		l.mu.Unlock()
		return
	}
	sub := l.conn.Subscribe(patternTopic(strings.Split(pattern, "/")))
	l.exports[pattern] = sub
	l.mu.Unlock()
	go l.pump(sub)
}

func (l *link) dropExport(pattern string) {
	l.mu.Lock()
	sub, ok := l.exports[pattern]
	if ok {
		delete(l.exports, pattern)
	}
	l.mu.Unlock()
	if ok {
		l.conn.Unsubscribe(sub)
	}
}

func (l *link) dropExports() {
	l.mu.Lock()
	subs := make([]*bus.Subscription, 0, len(l.exports))
	for _, sub := range l.exports {
		subs = append(subs, sub)
	}
	l.exports = map[string]*bus.Subscription{}
	l.mu.Unlock()
	for _, sub := range subs {
		l.conn.Unsubscribe(sub)
	}
}

// pump forwards one export subscription until it is unsubscribed. Topics
// this side may import are never forwarded back out, so a frame cannot
// orbit the link.
func (l *link) pump(sub *bus.Subscription) {
	for msg := range sub.Channel() {
		toks, ok := topicStrings(msg.Topic)
		if !ok || l.importable(toks) {
			continue
		}
		raw, err := json.Marshal(msg.Payload)
		if err != nil {
			println("Warn: bridge: unencodable payload on", strings.Join(toks, "/"))
			continue
		}
		body, err := json.Marshal(WireMsg{Topic: toks, Payload: raw, Retained: msg.Retained})
		if err != nil || len(body) > MaxFramePayload {
			println("Warn: bridge: oversize pub on", strings.Join(toks, "/"))
			continue
		}
		l.enqueue(Frame{Type: FramePub, Payload: body})
	}
}

// -----------------------------------------------------------------------------
// Transports
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler. Open may be called repeatedly; the
// bridge redials through it after every link loss.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// TransportFactory builds a Transport from its config section.
type TransportFactory func(TransportConfig) (Transport, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]TransportFactory{}
)

// RegisterTransport makes a transport available under name. Hosts use this
// to plug in serial or TCP links; registering an existing name replaces it.
func RegisterTransport(name string, f TransportFactory) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = f
}

func newTransport(tc TransportConfig) (Transport, error) {
	transportsMu.RLock()
	build, ok := transports[tc.Type]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no transport named %q", tc.Type)
	}
	return build(tc)
}

// UARTDial is installed by controller builds to open the configured UART.
// The bridge core stays platform-free; without a dialler the uart transport
// fails at open time.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

var errNoUARTDial = errors.New("no UART dialler installed")

type uartTransport struct{ cfg *UARTConfig }

func init() {
	RegisterTransport("uart", func(tc TransportConfig) (Transport, error) {
		if tc.UART == nil {
			return nil, errors.New("uart transport needs a uart section")
		}
		return &uartTransport{cfg: tc.UART}, nil
	})
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoUARTDial
	}
	return UARTDial(ctx, *u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

// Frame type bytes. Exported so host-side tools can speak the link
// protocol with the same constants.
const (
	FramePing  byte = 0x01
	FramePong  byte = 0x02
	FramePub   byte = 0x10
	FrameSub   byte = 0x11
	FrameUnsub byte = 0x12
	FrameClose byte = 0x7f
)

// MaxFramePayload bounds per-frame allocation on the controller side.
const MaxFramePayload = 4096

var ErrFrameTooLarge = errors.New("bridge: frame too large")

// Frame is a type byte plus a length-prefixed payload.
type Frame struct {
	Type    byte
	Payload []byte
}

// FrameReader decodes frames off a byte stream. It never reads past the
// frame it returns, so reader and writer can share one stream.
type FrameReader struct{ r io.Reader }

// FrameWriter encodes frames onto a byte stream. WriteFrame calls must be
// serialized by the caller.
type FrameWriter struct{ w io.Writer }

func NewFrameReader(r io.Reader) *FrameReader { return &FrameReader{r: r} }
func NewFrameWriter(w io.Writer) *FrameWriter { return &FrameWriter{w: w} }

// ReadFrame blocks for the next complete frame.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	f := Frame{Type: hdr[0]}
	size := int(binary.BigEndian.Uint16(hdr[1:]))
	if size > MaxFramePayload {
		return Frame{}, ErrFrameTooLarge
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(fr.r, f.Payload); err != nil {
			return Frame{}, err
		}
	}
	return f, nil
}

// WriteFrame emits f as a single write so frames cannot interleave on the
// stream.
func (fw *FrameWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 3, 3+len(f.Payload))
	buf[0] = f.Type
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(f.Payload)))
	buf = append(buf, f.Payload...)
	_, err := fw.w.Write(buf)
	return err
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func topicStrings(t bus.Topic) ([]string, bool) {
	out := make([]string, len(t))
	for i, tok := range t {
		s, ok := tok.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func patternTopic(toks []string) bus.Topic {
	t := make(bus.Topic, len(toks))
	for i, s := range toks {
		t[i] = s
	}
	return t
}

func parsePatterns(pats []string) [][]string {
	out := make([][]string, len(pats))
	for i, p := range pats {
		out[i] = strings.Split(p, "/")
	}
	return out
}

// matchTokens mirrors the bus matcher over wire-format tokens: "+" matches
// one token, "#" the rest (including none).
func matchTokens(pattern, topic []string) bool {
	for {
		if len(pattern) == 0 {
			return len(topic) == 0
		}
		if pattern[0] == "#" {
			return true
		}
		if len(topic) == 0 {
			return false
		}
		if pattern[0] != "+" && pattern[0] != topic[0] {
			return false
		}
		pattern, topic = pattern[1:], topic[1:]
	}
}

func (s *service) publishInfo(tr Transport, cfg Config) {
	s.conn.Publish(s.conn.NewMessage(topicInfo, map[string]any{
		"transport": tr.String(),
		"export":    cfg.Export,
		"import":    cfg.Import,
	}, true))
}

func (s *service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}

// expBackoff yields doubling delays from first up to limit.
func expBackoff(first, limit time.Duration) func() time.Duration {
	if first <= 0 {
		first = 100 * time.Millisecond
	}
	if limit < first {
		limit = first
	}
	next := first
	return func() time.Duration {
		d := next
		if next < limit {
			next *= 2
			if next > limit {
				next = limit
			}
		}
		return d
	}
}

// waitFor sleeps d unless ctx ends first, reporting whether the full wait
// ran.
func waitFor(ctx context.Context, d time.Duration) bool {
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return true
	case <-ctx.Done():
		return false
	}
}
