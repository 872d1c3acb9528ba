// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package config loads annalistd configuration from layered sources
// using Koanf v2. Precedence, lowest to highest:
//
//  1. Built-in defaults (the per-package DefaultConfig values)
//  2. An optional YAML file (annalist.yaml in the working directory or
//     /etc/annalist, overridable with ANNALIST_CONFIG)
//  3. Environment variables (SPOOL_PATH, NATS_ENABLED, HTTP_PORT, ...)
//
// The package owns the flat, tag-annotated section structs the file
// and environment map onto. The pipeline packages keep their own
// richer configs; the *Options methods translate sections into them,
// filling fields the sections do not expose from package defaults.
package config
