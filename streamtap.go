// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024-present Datadog, Inc.

// Command streamtap captures a live streaming session and hands it to OBS.
package main

import "github.com/streamtap/streamtap/cmd"

func main() {
	cmd.Execute()
}
