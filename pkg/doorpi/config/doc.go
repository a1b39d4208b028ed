/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
Files are loaded with FromFile; YAML, JSON and TOML are supported.

# Basic Usage

	cfg, err := config.FromFile("/etc/doorpi/doorpi.yaml")
	if err != nil {
	    return err
	}

	addr := cfg.Section("web").String("addr", ":8080")
	tick := cfg.Section("timer").Duration("interval", time.Second)

# Event Bindings

The "events" table maps event names to ordered action specs:

	events:
	  OnStartup:
	    - "log:doorpi started"
	  OnKeyPressed:
	    - "cmd:/usr/local/bin/open-door"
	    - spec: "log:first ring after boot"
	      single_fire: true

Bindings("events") returns them as a flat, ordered list.
*/
package config
