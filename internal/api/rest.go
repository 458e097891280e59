// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the read queries and the live feed over HTTP.
// The browser dashboard consumes these endpoints; everything stateful
// lives in internal/query and internal/broadcast, this layer only
// parses parameters and renders JSON.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/chirpwatch/lorawan-analyzer/internal/broadcast"
	"github.com/chirpwatch/lorawan-analyzer/internal/query"
	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

const defaultWindow = 24 * time.Hour

// RestApi bundles the dependencies of the HTTP read surface.
type RestApi struct {
	Queries *query.Query
	Hub     *broadcast.Hub
}

// MountRoutes registers every endpoint under /api, plus the /live
// websocket feed.
func (api *RestApi) MountRoutes(r *mux.Router) {
	r.HandleFunc("/live", api.live).Methods(http.MethodGet)

	r = r.PathPrefix("/api").Subrouter()
	r.StrictSlash(true)

	r.HandleFunc("/gateways/", api.getGateways).Methods(http.MethodGet)
	r.HandleFunc("/gateways/{id}", api.getGatewayTree).Methods(http.MethodGet)
	r.HandleFunc("/devices/{devAddr}", api.getDeviceProfile).Methods(http.MethodGet)
	r.HandleFunc("/devices/{devAddr}/loss", api.getDeviceLoss).Methods(http.MethodGet)
	r.HandleFunc("/devices/{devAddr}/timeline", api.getDeviceTimeline).Methods(http.MethodGet)
	r.HandleFunc("/devices/{devAddr}/intervals", api.getDeviceIntervals).Methods(http.MethodGet)
	r.HandleFunc("/devices/{devAddr}/distributions", api.getDeviceDistributions).Methods(http.MethodGet)
	r.HandleFunc("/timeseries/", api.getTimeSeries).Methods(http.MethodGet)
	r.HandleFunc("/distributions/", api.getDistributions).Methods(http.MethodGet)
	r.HandleFunc("/dutycycle/", api.getDutyCycle).Methods(http.MethodGet)
	r.HandleFunc("/packets/recent/", api.getRecentPackets).Methods(http.MethodGet)
	r.HandleFunc("/joins/", api.getJoinActivity).Methods(http.MethodGet)
	r.HandleFunc("/cs/devices/", api.getCsDevices).Methods(http.MethodGet)
	r.HandleFunc("/cs/timeseries/", api.getCsTimeSeries).Methods(http.MethodGet)
}

// parseWindow reads the from/to query parameters (RFC3339), defaulting
// to the trailing 24 hours.
func parseWindow(r *http.Request) (since, until time.Time, err error) {
	until = time.Now()
	since = until.Add(-defaultWindow)

	if v := r.URL.Query().Get("from"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return since, until, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		until, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return since, until, err
		}
	}
	return since, until, nil
}

// parseBucket reads the bucket query parameter in seconds, defaulting
// to one hour.
func parseBucket(r *http.Request) time.Duration {
	v := r.URL.Query().Get("bucket")
	if v == "" {
		return time.Hour
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return time.Hour
	}
	return time.Duration(secs) * time.Second
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Warnf("api: encoding response failed: %v", err)
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]string{"error": err.Error()})
}

func (api *RestApi) getGateways(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.GatewayList(r.Context(), since, until)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getGatewayTree(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.GatewayTree(r.Context(), mux.Vars(r)["id"], since, until)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getDeviceProfile(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.DeviceProfile(r.Context(), mux.Vars(r)["devAddr"], since, until)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	if out == nil {
		writeError(rw, http.StatusNotFound, errDeviceUnknown)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getDeviceLoss(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	overall, perGateway, err := api.Queries.DeviceLoss(r.Context(), mux.Vars(r)["devAddr"], since, until)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, map[string]any{"overall": overall, "per_gateway": perGateway})
}

func (api *RestApi) getDeviceTimeline(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.DeviceTimeline(r.Context(), mux.Vars(r)["devAddr"], since, until, parseBucket(r))
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getDeviceIntervals(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.DeviceIntervals(r.Context(), mux.Vars(r)["devAddr"], since, until)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getDeviceDistributions(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.DeviceDistributions(r.Context(), mux.Vars(r)["devAddr"], since, until)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getTimeSeries(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.TimeSeries(r.Context(), since, until, parseBucket(r), r.URL.Query().Get("gateway_id"))
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getDistributions(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.ChannelSFDistribution(r.Context(), since, until, r.URL.Query().Get("gateway_id"))
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getDutyCycle(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	var gatewayIDs []string
	if v := r.URL.Query().Get("gateway_id"); v != "" {
		gatewayIDs = []string{v}
	}
	out, err := api.Queries.DutyCycle(r.Context(), since, until, gatewayIDs)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getRecentPackets(rw http.ResponseWriter, r *http.Request) {
	f := query.RecentPacketsFilter{
		GatewayID:  r.URL.Query().Get("gateway_id"),
		DevAddr:    r.URL.Query().Get("dev_addr"),
		PacketType: r.URL.Query().Get("type"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			f.Limit = limit
		}
	}
	out, err := api.Queries.RecentPackets(r.Context(), f)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getJoinActivity(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.JoinActivity(r.Context(), since, until, parseBucket(r))
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getCsDevices(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.CsDeviceList(r.Context(), since, until)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}

func (api *RestApi) getCsTimeSeries(rw http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	out, err := api.Queries.CsTimeSeries(r.Context(), since, until, parseBucket(r), r.URL.Query().Get("dev_eui"))
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, out)
}
