// Package config loads the YAML configuration of the watchdog daemon.
//
// # Overview
//
// A configuration file declares the watchdogs to run, the notifiers they
// report to and the telemetry settings of the process. The Loader decodes
// the file strictly, fills unset values from the defaults section and
// validates the result with struct tags before anything is started.
//
// # File Format
//
//	defaults:
//	  check_interval: 10s
//	  max_retries: 3
//
//	watchdogs:
//	  - name: api
//	    check:
//	      type: http
//	      http:
//	        url: https://api.internal/healthz
//	        expect_status: [200]
//	    notify: [log]
//	  - name: queue-depth
//	    check_interval: 1m
//	    check:
//	      type: script
//	      script:
//	        file: /etc/watchdog/queue_depth.star
//	    notify: [log]
//
//	notifiers:
//	  - name: log
//	    type: log
//
// Check types are http, tcp, exec, ssh and script. Notifier types are log,
// event and sqs.
//
// # Environment
//
// WATCHDOG_CHECK_INTERVAL overrides defaults.check_interval. Watchdogs that
// set their own check_interval are not affected.
//
// # Reloading
//
// Watch observes the configuration file with fsnotify and calls the reload
// function with each new valid configuration. Bursts of events are debounced
// and a file that fails to parse or validate is logged and ignored.
package config
