/*
Package config loads Cadence's runtime configuration.

Configuration is layered, lowest precedence first:

 1. Default(): every polling interval, retry ceiling, queue capacity and
    timeout the components need
 2. A YAML file (durations as Go duration strings, e.g. "30s", "15m")
 3. Variables from a .env file, loaded with LoadDotEnv
 4. CADENCE_* environment variables (secrets, paths, addresses)
 5. Command-line flags, applied by cmd/cadence

Example file:

	store:
	  driver: bolt          # or sqlite
	  data_dir: /var/lib/cadence
	  encryption_key: ""    # set to seal access tokens at rest
	server:
	  http_addr: 127.0.0.1:8080
	  requests_per_second: 10
	  denied_ips: [203.0.113.0/24]
	executor:
	  interval: 30s
	  platforms: [instagram, facebook]
	retry:
	  transient: {max_retries: 3, base_delay: 15m, backoff: linear}
	autoreply:
	  max_replies_per_rule: 3
	notify:
	  queue_capacity: 50
	  dedup_window: 15m
	genai:
	  base_url: https://api.openai.com/v1
	  model: gpt-4o-mini
	probe:
	  interval: 30s         # 0 disables dependency probes
	  gateway_path: /healthz

Secrets such as CADENCE_GENAI_API_KEY, CADENCE_GATEWAY_TOKEN and
CADENCE_ENCRYPTION_KEY belong in the environment or .env, not the file.
*/
package config
