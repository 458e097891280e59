// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chirpwatch/lorawan-analyzer/internal/broadcast"
	"github.com/chirpwatch/lorawan-analyzer/model"
	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

var errDeviceUnknown = errors.New("api: unknown device")

// liveSinkBuffer bounds the per-subscriber send queue; a client that
// falls this far behind is dropped by the hub.
const liveSinkBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard may be served from a different origin than the API
	// bind address; packet data is not sensitive enough to gate on it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// live upgrades the connection, registers a subscriber built from the
// URL parameters, and streams matching packets until the client goes
// away.
func (api *RestApi) live(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Warnf("api: websocket upgrade failed: %v", err)
		return
	}

	sink := make(chan *model.LivePacket, liveSinkBuffer)
	sub := &broadcast.Subscriber{
		ID:     uuid.NewString(),
		Filter: filterFromRequest(r),
		Sink:   sink,
	}
	api.Hub.Subscribe(sub)
	defer api.Hub.Unsubscribe(sub.ID)

	// Drain client frames so pings are answered and closes are seen.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case lp := <-sink:
			if err := conn.WriteJSON(lp); err != nil {
				conn.Close()
				return
			}
		case <-done:
			conn.Close()
			return
		}
	}
}

// filterFromRequest builds a subscriber filter from the /live query
// string. Unknown or malformed parameters are ignored rather than
// rejected, so an old dashboard keeps working against a newer daemon.
func filterFromRequest(r *http.Request) broadcast.Filter {
	q := r.URL.Query()

	f := broadcast.Filter{
		GatewayID: q.Get("gateway_id"),
		Search:    q.Get("search"),
	}

	if v := q.Get("gateway_ids"); v != "" {
		f.GatewayIDs = strings.Split(v, ",")
	}
	if v := q.Get("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			f.PacketTypes = append(f.PacketTypes, model.PacketType(t))
		}
	}
	if v := q.Get("rssi_min"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			min := int32(n)
			f.RSSIMin = &min
		}
	}
	if v := q.Get("rssi_max"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			max := int32(n)
			f.RSSIMax = &max
		}
	}
	if v := q.Get("prefixes"); v != "" {
		f.Prefixes = strings.Split(v, ",")
	}
	if v := q.Get("filter_mode"); v == string(broadcast.OwnershipForeign) {
		f.FilterMode = broadcast.OwnershipForeign
	} else if v == string(broadcast.OwnershipOwned) {
		f.FilterMode = broadcast.OwnershipOwned
	}
	if q.Get("source") == string(broadcast.SourceChirpstack) {
		f.SourceMode = broadcast.SourceChirpstack
	} else {
		f.SourceMode = broadcast.SourceGateway
	}

	return f
}
