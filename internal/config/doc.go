// Package config provides centralized configuration management for the scanner.
// It loads configuration from a YAML file and the environment, validates it and
// hands the analysis pipeline an explicit, immutable flow.Config.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file (CHAN_CONFIG_FILE, config.yaml or configs/config.yaml)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern CHAN_<SECTION>_<KEY>:
//
//	CHAN_SERVER_PORT=10000
//	CHAN_ANALYSIS_PERIOD=10
//	CHAN_ANALYSIS_MIN_LIQUIDITY=10000000000
//	CHAN_ANALYSIS_TOP_N=5
//	CHAN_ANALYSIS_SYMBOLS=BBCA,TLKM,ASII
//	CHAN_SOURCES_RTI_EMAIL=...
//	CHAN_TELEGRAM_BOT_TOKEN=...
//	CHAN_SCHEDULE_MORNING=01:00
//
// # Scoring Policy
//
// The scoring policy (weights, score bands, divergence bands, zone multipliers)
// defaults to flow.DefaultPolicy and may be overridden by a YAML file named in
// CHAN_ANALYSIS_POLICY_FILE:
//
//	weights:
//	  streak: 0.40
//	  flow: 0.30
//	  stability: 0.20
//	  liquidity: 0.10
//	divergence_adjustment: 5
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	policy, err := config.LoadPolicy(cfg.Analysis.PolicyFile)
//	flowCfg := cfg.FlowConfig(policy)
package config
