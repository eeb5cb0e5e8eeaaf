// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/kent-3/keplr/client/keplr"
	"github.com/kent-3/keplr/dex/msgjson"
	"github.com/kent-3/keplr/dex/ws"
)

var idCounter uint64

// nextID returns a unique ID for a request-type message.
func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// pageLink is a connected relay page.
type pageLink struct {
	*ws.WSLink
	s *Server

	mtx          sync.Mutex
	hello        *msgjson.Hello
	respHandlers map[uint64]chan *msgjson.Message
}

func newPageLink(s *Server, addr string, conn ws.Connection) *pageLink {
	p := &pageLink{
		s:            s,
		respHandlers: make(map[uint64]chan *msgjson.Message),
	}
	p.WSLink = ws.NewWSLink(&ws.LinkConfig{
		Addr:       addr,
		Conn:       conn,
		PingPeriod: s.pingPeriod,
		Handler:    p.handleMessage,
		Logger:     s.log,
	})
	return p
}

func (p *pageLink) handleMessage(msg *msgjson.Message) *msgjson.Error {
	switch msg.Type {
	case msgjson.Response:
		ch := p.respHandler(msg.ID)
		if ch == nil {
			p.s.log.Debugf("No handler for response %d from %s. Timed out?", msg.ID, p.Addr())
			return nil
		}
		ch <- msg
		return nil
	case msgjson.Notification:
		if msg.Route != msgjson.HelloRoute {
			p.s.log.Warnf("Unknown notification route %q from %s", msg.Route, p.Addr())
			return nil
		}
		hello := new(msgjson.Hello)
		if err := msg.Unmarshal(hello); err != nil {
			p.s.log.Errorf("Invalid hello from %s: %v", p.Addr(), err)
			return nil
		}
		p.mtx.Lock()
		p.hello = hello
		p.mtx.Unlock()
		p.s.log.Infof("Relay page %s ready. Keplr available = %t, user agent = %q",
			p.Addr(), hello.Available, hello.UserAgent)
		p.s.pageGreeted()
		return nil
	}
	return msgjson.NewError(msgjson.RPCUnknownRoute, "the relay page does not serve requests")
}

func (p *pageLink) greeted() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.hello != nil
}

func (p *pageLink) available() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.hello != nil && p.hello.Available
}

// logReq registers a response channel for the request ID.
func (p *pageLink) logReq(id uint64) chan *msgjson.Message {
	ch := make(chan *msgjson.Message, 1)
	p.mtx.Lock()
	p.respHandlers[id] = ch
	p.mtx.Unlock()
	return ch
}

// respHandler extracts the response channel for the request ID, if it is
// still registered.
func (p *pageLink) respHandler(id uint64) chan *msgjson.Message {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	ch, ok := p.respHandlers[id]
	if ok {
		delete(p.respHandlers, id)
	}
	return ch
}

// failPending unregisters every outstanding request. Waiters see the link's
// Done channel close.
func (p *pageLink) failPending() {
	p.mtx.Lock()
	n := len(p.respHandlers)
	p.respHandlers = make(map[uint64]chan *msgjson.Message)
	p.mtx.Unlock()
	if n > 0 {
		p.s.log.Debugf("Dropped %d pending requests for %s", n, p.Addr())
	}
}

// request sends a request to the page and waits for the response.
func (p *pageLink) request(ctx context.Context, route string, payload interface{}) (json.RawMessage, error) {
	msg, err := msgjson.NewRequest(nextID(), route, payload)
	if err != nil {
		return nil, err
	}
	ch := p.logReq(msg.ID)
	if err := p.Send(msg); err != nil {
		p.respHandler(msg.ID)
		return nil, fmt.Errorf("%s: %w", route, err)
	}
	var resp *msgjson.Message
	select {
	case resp = <-ch:
	case <-ctx.Done():
		p.respHandler(msg.ID)
		return nil, ctx.Err()
	case <-p.Done():
		return nil, fmt.Errorf("%s: %w", route, ws.ErrPeerDisconnected)
	}
	payloadResp, err := resp.Response()
	if err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", route, err)
	}
	if rpcErr := payloadResp.Error; rpcErr != nil {
		if rpcErr.Code == msgjson.HostCallError {
			return nil, &keplr.HostError{Message: rpcErr.Message}
		}
		return nil, fmt.Errorf("%s: relay error: %w", route, rpcErr)
	}
	return payloadResp.Result, nil
}

var _ keplr.Host = (*Server)(nil)

// Available is true when a page is connected and reported that the wallet
// was present when it loaded.
func (s *Server) Available() bool {
	page := s.currentPage()
	return page != nil && !page.Off() && page.available()
}

func (s *Server) request(ctx context.Context, route string, req *msgjson.CallRequest) (json.RawMessage, error) {
	page := s.currentPage()
	if page == nil {
		return nil, ErrNoPage
	}
	if req.Args == nil {
		req.Args = []json.RawMessage{}
	}
	return page.request(ctx, route, req)
}

// Call invokes a method of window.keplr in the page.
func (s *Server) Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error) {
	return s.request(ctx, method, &msgjson.CallRequest{Args: args})
}

// Notify invokes a method of window.keplr without waiting for it.
func (s *Server) Notify(method string, args ...json.RawMessage) {
	page := s.currentPage()
	if page == nil {
		s.log.Warnf("No relay page for %s notification", method)
		return
	}
	if args == nil {
		args = []json.RawMessage{}
	}
	msg, err := msgjson.NewNotification(method, &msgjson.CallRequest{Args: args})
	if err != nil {
		s.log.Errorf("Failed to encode %s notification: %v", method, err)
		return
	}
	if err := page.Send(msg); err != nil {
		s.log.Debugf("Failed to send %s notification: %v", method, err)
	}
}

// Object invokes a method of window.keplr and has the page keep the result,
// returning a reference to it.
func (s *Server) Object(ctx context.Context, method string, args ...json.RawMessage) (keplr.HostObject, error) {
	page := s.currentPage()
	if page == nil {
		return nil, ErrNoPage
	}
	if args == nil {
		args = []json.RawMessage{}
	}
	res, err := page.request(ctx, method, &msgjson.CallRequest{Args: args, Ref: true})
	if err != nil {
		return nil, err
	}
	var ref msgjson.ObjectRef
	if err := json.Unmarshal(res, &ref); err != nil || ref.Ref == 0 {
		return nil, fmt.Errorf("%s: invalid object reference %s", method, string(res))
	}
	obj := &object{page: page, ref: ref.Ref, props: ref.Props}
	runtime.AddCleanup(obj, page.release, ref.Ref)
	return obj, nil
}

// release tells the page it may drop an object.
func (p *pageLink) release(ref uint64) {
	if p.Off() {
		return
	}
	msg, err := msgjson.NewNotification(msgjson.ReleaseRoute, &msgjson.ObjectRef{Ref: ref})
	if err != nil {
		return
	}
	if err := p.Send(msg); err != nil {
		p.s.log.Tracef("Failed to release object %d: %v", ref, err)
	}
}

// object is a keplr.HostObject held by a relay page. References do not
// survive the page: once it disconnects, calls fail.
type object struct {
	page  *pageLink
	ref   uint64
	props map[string]json.RawMessage
}

var _ keplr.HostObject = (*object)(nil)

// Property reads the snapshot taken when the reference was created.
func (o *object) Property(name string) (json.RawMessage, error) {
	return o.props[name], nil
}

// Call invokes a method of the object in the page.
func (o *object) Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error) {
	if args == nil {
		args = []json.RawMessage{}
	}
	return o.page.request(ctx, method, &msgjson.CallRequest{Object: o.ref, Args: args})
}
