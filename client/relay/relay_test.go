// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kent-3/keplr/client/keplr"
	"github.com/kent-3/keplr/client/keplr/keplrtest"
	"github.com/kent-3/keplr/dex"
	"github.com/kent-3/keplr/dex/msgjson"
)

var tLogger = dex.StdOutLogger("TEST", dex.LevelTrace)

// testPage stands in for the relay page, forwarding calls to a stub wallet.
type testPage struct {
	t      *testing.T
	conn   *websocket.Conn
	wallet *keplrtest.Wallet
	ctx    context.Context
	cancel context.CancelFunc

	writeMtx sync.Mutex

	mtx      sync.Mutex
	objects  map[uint64]keplr.HostObject
	nextRef  uint64
	released chan uint64
}

func dialPage(t *testing.T, s *Server, wallet *keplrtest.Wallet, available bool) *testPage {
	t.Helper()
	wsURL := "ws://" + strings.TrimPrefix(s.URL(), "http://") + "ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &testPage{
		t:        t,
		conn:     conn,
		wallet:   wallet,
		ctx:      ctx,
		cancel:   cancel,
		objects:  make(map[uint64]keplr.HostObject),
		released: make(chan uint64, 16),
	}
	hello, _ := msgjson.NewNotification(msgjson.HelloRoute, &msgjson.Hello{Available: available, UserAgent: "test"})
	p.send(hello)
	go p.run()
	return p
}

func (p *testPage) close() {
	p.cancel()
	p.conn.Close()
}

func (p *testPage) send(msg *msgjson.Message) {
	b, _ := json.Marshal(msg)
	p.writeMtx.Lock()
	defer p.writeMtx.Unlock()
	p.conn.WriteMessage(websocket.TextMessage, b)
}

func (p *testPage) run() {
	defer p.cancel()
	for {
		_, b, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := msgjson.DecodeMessage(b)
		if err != nil {
			p.t.Errorf("page received invalid message: %v", err)
			return
		}
		switch msg.Type {
		case msgjson.Request:
			go p.handleRequest(msg)
		case msgjson.Notification:
			p.handleNotification(msg)
		}
	}
}

func (p *testPage) handleRequest(msg *msgjson.Message) {
	var req msgjson.CallRequest
	if err := msg.Unmarshal(&req); err != nil {
		p.respond(msg.ID, nil, msgjson.NewError(msgjson.RPCParseError, "%v", err))
		return
	}
	var res json.RawMessage
	var err error
	switch {
	case req.Object != 0:
		p.mtx.Lock()
		obj := p.objects[req.Object]
		p.mtx.Unlock()
		if obj == nil {
			p.respond(msg.ID, nil, msgjson.NewError(msgjson.UnknownObject, "unknown object %d", req.Object))
			return
		}
		res, err = obj.Call(p.ctx, msg.Route, req.Args...)
	case req.Ref:
		var obj keplr.HostObject
		obj, err = p.wallet.Object(p.ctx, msg.Route, req.Args...)
		if err == nil {
			chainID, _ := obj.Property("chainId")
			p.mtx.Lock()
			p.nextRef++
			ref := p.nextRef
			p.objects[ref] = obj
			p.mtx.Unlock()
			res, _ = json.Marshal(&msgjson.ObjectRef{
				Ref:   ref,
				Props: map[string]json.RawMessage{"chainId": chainID},
			})
		}
	default:
		res, err = p.wallet.Call(p.ctx, msg.Route, req.Args...)
	}
	if err != nil {
		p.respond(msg.ID, nil, msgjson.NewError(msgjson.HostCallError, "%s", err.Error()))
		return
	}
	p.respond(msg.ID, res, nil)
}

func (p *testPage) respond(id uint64, res json.RawMessage, rpcErr *msgjson.Error) {
	var result interface{}
	if res != nil {
		result = res
	}
	resp, err := msgjson.NewResponse(id, result, rpcErr)
	if err != nil {
		p.t.Errorf("NewResponse error: %v", err)
		return
	}
	p.send(resp)
}

func (p *testPage) handleNotification(msg *msgjson.Message) {
	if msg.Route == msgjson.ReleaseRoute {
		var ref msgjson.ObjectRef
		msg.Unmarshal(&ref)
		p.mtx.Lock()
		delete(p.objects, ref.Ref)
		p.mtx.Unlock()
		p.released <- ref.Ref
		return
	}
	var req msgjson.CallRequest
	msg.Unmarshal(&req)
	p.wallet.Notify(msg.Route, req.Args...)
}

func newTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	s, err := New(&Config{Addr: "127.0.0.1:0", Logger: tLogger})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	wg, err := s.Connect(ctx)
	if err != nil {
		cancel()
		t.Fatalf("Connect error: %v", err)
	}
	return s, func() {
		cancel()
		wg.Wait()
	}
}

func waitForPage(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitForPage(ctx); err != nil {
		t.Fatalf("WaitForPage error: %v", err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(&Config{Addr: "no port"}); err == nil {
		t.Fatalf("no error for bad address")
	}
	s, err := New(&Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if s.URL() != "http://"+DefaultAddr+"/" {
		t.Fatalf("wrong URL %s", s.URL())
	}
}

func TestPageAssets(t *testing.T) {
	s, shutdown := newTestServer(t)
	defer shutdown()

	for path, want := range map[string]string{
		"":         `src="relay.js"`,
		"relay.js": msgjson.ReleaseRoute,
	} {
		resp, err := http.Get(s.URL() + path)
		if err != nil {
			t.Fatalf("GET %s error: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
		if !strings.Contains(string(b), want) {
			t.Fatalf("GET %s: missing %q", path, want)
		}
		if resp.Header.Get("Cache-Control") == "" {
			t.Fatalf("GET %s: no Cache-Control header", path)
		}
	}
	resp, err := http.Get(s.URL() + "nothing.js")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("wrong status for missing file %d", resp.StatusCode)
	}
}

func TestNoPage(t *testing.T) {
	s, shutdown := newTestServer(t)
	defer shutdown()
	k, _ := keplr.New(&keplr.Config{Host: s, Logger: tLogger})
	if k.IsAvailable() {
		t.Fatalf("available with no page")
	}
	err := k.Ping(context.Background())
	if !errors.Is(err, keplr.ErrHostUnavailable) || !errors.Is(err, ErrNoPage) {
		t.Fatalf("wrong error with no page: %v", err)
	}
	// Does not block or panic.
	k.DisableOrigin()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitForPage(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wrong WaitForPage error: %v", err)
	}
}

func TestForeignOrigin(t *testing.T) {
	s, shutdown := newTestServer(t)
	defer shutdown()
	wsURL := "ws://" + strings.TrimPrefix(s.URL(), "http://") + "ws"

	hdr := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err == nil {
		conn.Close()
		t.Fatalf("connection from a foreign origin was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong response for foreign origin: %v", err)
	}
	if s.currentPage() != nil {
		t.Fatalf("foreign page registered")
	}

	// A name rebound to loopback is not the relay, even when Host and Origin
	// agree.
	_, port, _ := net.SplitHostPort(strings.TrimPrefix(strings.TrimSuffix(s.URL(), "/"), "http://"))
	rebound := "evil.example:" + port
	hdr = http.Header{"Host": []string{rebound}, "Origin": []string{"http://" + rebound}}
	conn, resp, err = websocket.DefaultDialer.Dial(wsURL, hdr)
	if err == nil {
		conn.Close()
		t.Fatalf("connection for a rebound host name was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong response for rebound host name: %v", err)
	}
	if s.currentPage() != nil {
		t.Fatalf("rebound page registered")
	}

	// The relay page's own origin is fine.
	hdr = http.Header{"Origin": []string{strings.TrimSuffix(s.URL(), "/")}}
	conn, _, err = websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("same origin Dial error: %v", err)
	}
	conn.Close()
}

func TestTrustedRequest(t *testing.T) {
	s, err := New(&Config{Addr: "127.0.0.1:9871"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	tests := []struct {
		name, origin, host string
		want               bool
	}{
		{"no origin", "", "127.0.0.1:9871", true},
		{"same origin", "http://127.0.0.1:9871", "127.0.0.1:9871", true},
		{"localhost", "http://localhost:9871", "localhost:9871", true},
		{"ipv6 loopback", "http://[::1]:9871", "[::1]:9871", true},
		{"other port", "http://127.0.0.1:9872", "127.0.0.1:9871", false},
		{"foreign origin", "https://evil.example", "127.0.0.1:9871", false},
		{"rebound name", "http://evil.example:9871", "evil.example:9871", false},
		{"rebound name no origin", "", "evil.example:9871", false},
		{"https origin", "https://127.0.0.1:9871", "127.0.0.1:9871", false},
		{"bad origin", "::", "127.0.0.1:9871", false},
		{"no port", "", "127.0.0.1", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "http://"+tt.host+"/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := s.trustedRequest(r); got != tt.want {
			t.Fatalf("%s: trustedRequest = %t, wanted %t", tt.name, got, tt.want)
		}
	}
}

func TestRelay(t *testing.T) {
	s, shutdown := newTestServer(t)
	defer shutdown()
	wallet := keplrtest.NewWallet(&keplrtest.Config{Seed: []byte{5}, Logger: tLogger})
	page := dialPage(t, s, wallet, true)
	defer page.close()
	waitForPage(t, s)

	k, _ := keplr.New(&keplr.Config{Host: s, Logger: tLogger})
	if !k.IsAvailable() {
		t.Fatalf("not available")
	}
	ctx := context.Background()
	chainID := keplrtest.SecretChainID

	if err := k.Ping(ctx); err != nil {
		t.Fatalf("Ping error: %v", err)
	}
	err := k.Enable(ctx, "unknown-1")
	var kerr *keplr.Error
	if !errors.As(err, &kerr) || kerr.Kind != keplr.ErrJavaScript || !strings.Contains(kerr.Message, "unknown-1") {
		t.Fatalf("wrong error for unknown chain: %v", err)
	}
	if err := k.Enable(ctx, chainID); err != nil {
		t.Fatalf("Enable error: %v", err)
	}

	key, err := k.GetKey(ctx, chainID)
	if err != nil {
		t.Fatalf("GetKey error: %v", err)
	}
	if !bytes.Equal(key.Address, wallet.Address(0)) {
		t.Fatalf("wrong address")
	}

	signer, err := k.OfflineSigner(ctx, chainID)
	if err != nil {
		t.Fatalf("OfflineSigner error: %v", err)
	}
	if id, err := signer.ChainID(); err != nil || id != chainID {
		t.Fatalf("wrong chain ID %q, %v", id, err)
	}
	acct, err := signer.Account(ctx)
	if err != nil {
		t.Fatalf("Account error: %v", err)
	}
	resp, err := signer.SignDirect(ctx, acct.Address, &keplr.SignDoc{
		BodyBytes:     []byte{0x0a, 0x00},
		AuthInfoBytes: []byte{0x12, 0x00},
		ChainID:       chainID,
		AccountNumber: 7,
	})
	if err != nil {
		t.Fatalf("SignDirect error: %v", err)
	}
	txRaw, _ := resp.TxRaw()
	if _, err := k.SendTx(ctx, chainID, keplr.EncodeTxRaw(txRaw), keplr.BroadcastBlock); err != nil {
		t.Fatalf("SendTx error: %v", err)
	}

	e, err := k.EnigmaUtils(ctx, chainID)
	if err != nil {
		t.Fatalf("EnigmaUtils error: %v", err)
	}
	enc, err := e.Encrypt(ctx, strings.Repeat("ab", 32), map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	plain, err := e.DecryptEncrypted(ctx, enc)
	if err != nil || string(plain) != `{"a":"b"}` {
		t.Fatalf("DecryptEncrypted: %s, %v", plain, err)
	}

	k.Disable(chainID)
	deadline := time.Now().Add(5 * time.Second)
	for wallet.Enabled(chainID) {
		if time.Now().After(deadline) {
			t.Fatalf("chain not disabled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.currentPage().release(1)
	select {
	case ref := <-page.released:
		if ref != 1 {
			t.Fatalf("wrong released ref %d", ref)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("release not received")
	}
	// The released signer object is gone from the page.
	_, err = signer.GetAccounts(ctx)
	if !errors.Is(err, keplr.ErrHostUnavailable) {
		t.Fatalf("wrong error for released object: %v", err)
	}
}

func TestUnavailableWallet(t *testing.T) {
	s, shutdown := newTestServer(t)
	defer shutdown()
	wallet := keplrtest.NewWallet(&keplrtest.Config{})
	wallet.SetAbsent(true)
	page := dialPage(t, s, wallet, false)
	defer page.close()
	waitForPage(t, s)

	k, _ := keplr.New(&keplr.Config{Host: s, Logger: tLogger})
	if k.IsAvailable() {
		t.Fatalf("available when page reported no wallet")
	}
	err := k.Enable(context.Background(), keplrtest.SecretChainID)
	if !errors.Is(err, keplr.ErrJavaScript) {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestPendingCalls(t *testing.T) {
	s, shutdown := newTestServer(t)
	defer shutdown()
	wallet := keplrtest.NewWallet(&keplrtest.Config{})
	wallet.SetPendingApproval(true)
	page := dialPage(t, s, wallet, true)
	waitForPage(t, s)
	k, _ := keplr.New(&keplr.Config{Host: s, Logger: tLogger})

	// Context expiry.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := k.Enable(ctx, keplrtest.SecretChainID)
	if !errors.Is(err, keplr.ErrHostUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wrong error after timeout: %v", err)
	}

	// Page disconnect.
	errC := make(chan error, 1)
	go func() {
		errC <- k.Enable(context.Background(), keplrtest.SecretChainID)
	}()
	time.Sleep(50 * time.Millisecond)
	page.close()
	select {
	case err := <-errC:
		if !errors.Is(err, keplr.ErrHostUnavailable) {
			t.Fatalf("wrong error after disconnect: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("call not failed by disconnect")
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.currentPage() != nil {
		if time.Now().After(deadline) {
			t.Fatalf("closed page not dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if k.IsAvailable() {
		t.Fatalf("available after page closed")
	}

	// A new page takes over.
	wallet.SetPendingApproval(false)
	page2 := dialPage(t, s, wallet, true)
	defer page2.close()
	waitForPage(t, s)
	if err := k.Enable(context.Background(), keplrtest.SecretChainID); err != nil {
		t.Fatalf("Enable error on new page: %v", err)
	}
}
