// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/streamtap/streamtap/log"
	"github.com/streamtap/streamtap/runner"
)

func getBoolParam(query map[string][]string, key string, defaultValue bool) bool {
	if values, ok := query[key]; ok && len(values) > 0 {
		if val, err := strconv.ParseBool(values[0]); err == nil {
			return val
		}
	}
	return defaultValue
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		_ = log.Warnf("failed to encode response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, code runner.ErrorCode, message string) {
	writeJSON(w, status, runner.ErrorResponse{Code: code, Message: message})
}
