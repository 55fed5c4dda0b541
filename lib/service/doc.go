// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the CBOR-over-Unix-socket protocol the
// poker store service speaks.
//
// Each connection carries one request. The client writes a single
// CBOR map with an "action" field plus action-specific fields. For a
// plain action the server replies with one Response and closes the
// connection. For a stream action the handler takes ownership of the
// connection and writes a sequence of CBOR frames until either side
// closes it.
//
//	server := service.NewSocketServer(path, logger)
//	server.Handle("get_room", handleGetRoom)
//	server.HandleStream("subscribe", handleSubscribe)
//	go server.Serve(ctx)
//
//	client := service.NewServiceClient(path)
//	err := client.Call(ctx, "get_room", map[string]any{"room": id}, &room)
//
// Handlers report failures by returning an error. Returning a *Error
// attaches a machine-readable code that the client exposes through
// ServiceError.Code.
package service
