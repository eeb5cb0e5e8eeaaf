// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

//go:build js && wasm

// Package jshost is the keplr.Host for Go compiled to WebAssembly and running
// in the page that has the wallet. It calls window.keplr directly.
package jshost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/kent-3/keplr/client/keplr"
	"github.com/kent-3/keplr/dex"
)

var (
	jsJSON       = js.Global().Get("JSON")
	jsUint8Array = js.Global().Get("Uint8Array")
)

// Host calls window.keplr.
type Host struct {
	log      dex.Logger
	replacer js.Func
}

var _ keplr.Host = (*Host)(nil)

// New is the constructor for a *Host. Close releases the JSON replacer.
func New(log dex.Logger) *Host {
	if log == nil {
		log = dex.Disabled
	}
	return &Host{
		log:      log,
		replacer: js.FuncOf(replace),
	}
}

// Close releases the Host's JavaScript callbacks. The Host must not be used
// afterwards.
func (h *Host) Close() {
	h.replacer.Release()
}

func wallet() js.Value {
	return js.Global().Get("keplr")
}

// Available reports whether window.keplr is defined.
func (h *Host) Available() bool {
	k := wallet()
	return !k.IsUndefined() && !k.IsNull()
}

// Call invokes a method of window.keplr and awaits the result.
func (h *Host) Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error) {
	k, err := h.walletObject()
	if err != nil {
		return nil, err
	}
	v, err := h.invoke(ctx, k, method, args)
	if err != nil {
		return nil, err
	}
	return h.toJSON(v)
}

// Notify invokes a method of window.keplr before returning, without waiting
// for a returned promise. Failures, including a later rejection, are logged.
func (h *Host) Notify(method string, args ...json.RawMessage) {
	k, err := h.walletObject()
	if err != nil {
		h.log.Debugf("%s notification failed: %v", method, err)
		return
	}
	v, err := h.start(k, method, args)
	if err != nil {
		h.log.Debugf("%s notification failed: %v", method, err)
		return
	}
	if !thenable(v) {
		return
	}
	var onResolve, onReject js.Func
	release := func() {
		onResolve.Release()
		onReject.Release()
	}
	onResolve = js.FuncOf(func(js.Value, []js.Value) interface{} {
		release()
		return nil
	})
	onReject = js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		h.log.Debugf("%s notification rejected: %v", method, hostError(firstArg(args)))
		release()
		return nil
	})
	v.Call("then", onResolve, onReject)
}

// Object invokes a method of window.keplr that returns an object.
func (h *Host) Object(ctx context.Context, method string, args ...json.RawMessage) (keplr.HostObject, error) {
	k, err := h.walletObject()
	if err != nil {
		return nil, err
	}
	v, err := h.invoke(ctx, k, method, args)
	if err != nil {
		return nil, err
	}
	if v.Type() != js.TypeObject {
		return nil, fmt.Errorf("%s returned %s, not an object", method, v.Type())
	}
	return &object{h: h, v: v}, nil
}

func (h *Host) walletObject() (js.Value, error) {
	k := wallet()
	if k.IsUndefined() || k.IsNull() {
		return js.Value{}, &keplr.HostError{Message: "window.keplr is undefined"}
	}
	return k, nil
}

// invoke calls obj[method] with the decoded arguments and awaits the result
// if it is a promise. A synchronous throw and a rejection are both returned
// as a *keplr.HostError.
func (h *Host) invoke(ctx context.Context, obj js.Value, method string, args []json.RawMessage) (js.Value, error) {
	v, err := h.start(obj, method, args)
	if err != nil {
		return js.Value{}, err
	}
	return await(ctx, v)
}

// start calls obj[method] with the decoded arguments and returns the result
// as is. A synchronous throw is returned as a *keplr.HostError.
func (h *Host) start(obj js.Value, method string, args []json.RawMessage) (v js.Value, err error) {
	fn := obj.Get(method)
	if fn.Type() != js.TypeFunction {
		return js.Value{}, &keplr.HostError{Message: method + " is not a function"}
	}
	jsArgs := make([]interface{}, 0, len(args))
	for i, arg := range args {
		jv, err := fromJSON(arg)
		if err != nil {
			return js.Value{}, fmt.Errorf("argument %d: %w", i, err)
		}
		jsArgs = append(jsArgs, jv)
	}
	defer func() {
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				err = hostError(jsErr.Value)
				return
			}
			panic(r)
		}
	}()
	return obj.Call(method, jsArgs...), nil
}

func thenable(v js.Value) bool {
	return v.Type() == js.TypeObject && v.Get("then").Type() == js.TypeFunction
}

// await waits for a thenable to settle. Other values are returned as is.
func await(ctx context.Context, v js.Value) (js.Value, error) {
	if !thenable(v) {
		return v, nil
	}
	type settled struct {
		v   js.Value
		err error
	}
	c := make(chan settled, 1)
	var once sync.Once
	var onResolve, onReject js.Func
	finish := func(s settled) {
		once.Do(func() {
			c <- s
			onResolve.Release()
			onReject.Release()
		})
	}
	onResolve = js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		finish(settled{v: firstArg(args)})
		return nil
	})
	onReject = js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		finish(settled{err: hostError(firstArg(args))})
		return nil
	})
	v.Call("then", onResolve, onReject)
	select {
	case s := <-c:
		return s.v, s.err
	case <-ctx.Done():
		// The callbacks stay registered until the promise settles.
		return js.Value{}, ctx.Err()
	}
}

func firstArg(args []js.Value) js.Value {
	if len(args) == 0 {
		return js.Undefined()
	}
	return args[0]
}

// hostError extracts the message of a thrown value.
func hostError(v js.Value) *keplr.HostError {
	switch v.Type() {
	case js.TypeString:
		return &keplr.HostError{Message: v.String()}
	case js.TypeObject:
		if msg := v.Get("message"); msg.Type() == js.TypeString {
			return &keplr.HostError{Message: msg.String()}
		}
	}
	return &keplr.HostError{}
}

// toJSON serializes a JavaScript value, with Uint8Arrays as BytesArg
// envelopes and Long integers as decimal strings.
func (h *Host) toJSON(v js.Value) (json.RawMessage, error) {
	if v.IsUndefined() || v.IsNull() {
		return nil, nil
	}
	s := jsJSON.Call("stringify", v, h.replacer)
	if s.Type() != js.TypeString {
		return nil, fmt.Errorf("value of type %s is not serializable", v.Type())
	}
	return json.RawMessage(s.String()), nil
}

// replace is the JSON.stringify replacer.
func replace(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.Undefined()
	}
	v := args[1]
	if v.Type() != js.TypeObject {
		return v
	}
	if v.InstanceOf(jsUint8Array) {
		b := make([]byte, v.Length())
		js.CopyBytesToGo(b, v)
		return map[string]interface{}{keplr.BytesArgKey: base64.StdEncoding.EncodeToString(b)}
	}
	if v.Get("low").Type() == js.TypeNumber && v.Get("high").Type() == js.TypeNumber &&
		v.Get("unsigned").Type() == js.TypeBoolean {
		return v.Call("toString")
	}
	return v
}

// fromJSON converts an argument to a JavaScript value, turning BytesArg
// envelopes into Uint8Arrays.
func fromJSON(raw json.RawMessage) (js.Value, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return js.Value{}, err
	}
	return toJS(v), nil
}

func toJS(v interface{}) js.Value {
	switch t := v.(type) {
	case map[string]interface{}:
		if b64, ok := t[keplr.BytesArgKey].(string); ok && len(t) == 1 {
			if b, err := base64.StdEncoding.DecodeString(b64); err == nil {
				u8 := jsUint8Array.New(len(b))
				js.CopyBytesToJS(u8, b)
				return u8
			}
		}
		obj := js.Global().Get("Object").New()
		for k, elem := range t {
			obj.Set(k, toJS(elem))
		}
		return obj
	case []interface{}:
		arr := js.Global().Get("Array").New(len(t))
		for i, elem := range t {
			arr.SetIndex(i, toJS(elem))
		}
		return arr
	}
	return js.ValueOf(v)
}

// object is a JavaScript object returned by the wallet, such as a signer.
type object struct {
	h *Host
	v js.Value
}

var _ keplr.HostObject = (*object)(nil)

// Property reads a data property. Functions read as missing.
func (o *object) Property(name string) (json.RawMessage, error) {
	p := o.v.Get(name)
	if p.IsUndefined() || p.Type() == js.TypeFunction {
		return nil, nil
	}
	return o.h.toJSON(p)
}

// Call invokes a method of the object and awaits the result.
func (o *object) Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error) {
	v, err := o.h.invoke(ctx, o.v, method, args)
	if err != nil {
		return nil, err
	}
	return o.h.toJSON(v)
}
