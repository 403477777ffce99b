// Package config loads and validates the front end's JSON configuration
// surface: table sizes, per-cycle quotas and the replacement policy knobs.
// Grounded on timing/latency/config.go's
// LoadConfig/SaveConfig/Validate/Clone pattern.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/frontendsim/bp"
	"github.com/sarchlab/frontendsim/confidence"
	"github.com/sarchlab/frontendsim/dfe"
	"github.com/sarchlab/frontendsim/uopcache"
	"github.com/sarchlab/frontendsim/uopqueue"
)

// Config is the full, JSON-serializable configuration surface for one
// simulated core's front end.
type Config struct {
	// Branch predictor tables.
	GHRBits      uint32 `json:"ghr_bits"`
	BHTSize      uint32 `json:"bht_size"`
	BTBSize      uint32 `json:"btb_size"`
	IBTBSize     uint32 `json:"ibtb_size"`
	CRSDepth     uint32 `json:"crs_depth"`
	CRSRealistic uint32 `json:"crs_realistic"`

	// Fetch Target Queue / per-cycle quotas.
	FTQCapacity          int    `json:"ftq_capacity"`
	FTPerCycle           int    `json:"ft_per_cycle"`
	TakenCFsPerCycle     int    `json:"taken_cfs_per_cycle"`
	ForwardProgressLimit uint64 `json:"forward_progress_limit"`

	// Uop cache.
	UopCacheSets          int    `json:"uop_cache_sets"`
	UopCacheAssoc         int    `json:"uop_cache_assoc"`
	UopCacheLineWidth     int    `json:"uop_cache_line_width"`
	UopCacheReplacement   string `json:"uop_cache_replacement"` // "lru", "random", "round_robin", "rrip"

	// Uop queue.
	UopQueueCapacity int `json:"uop_queue_capacity"`
	UopQueueWidth    int `json:"uop_queue_width"`

	// Confidence estimator.
	ConfWeight       int32  `json:"conf_weight"`
	ConfThreshold    int32  `json:"conf_threshold"`
	ConfSampleWindow uint32 `json:"conf_sample_window"`

	// Multi-DFE (NUM_BPS > 1).
	NumBPs int `json:"num_bps"`
}

// Default returns the configuration this module ships with, assembled
// from each component's own DefaultConfig.
func Default() *Config {
	bpCfg := bp.DefaultConfig()
	dfeCfg := dfe.DefaultConfig()
	ucCfg := uopcache.DefaultConfig()
	uqCfg := uopqueue.DefaultConfig()
	confCfg := confidence.DefaultConfig()

	return &Config{
		GHRBits:      bpCfg.GHRBits,
		BHTSize:      bpCfg.BHTSize,
		BTBSize:      bpCfg.BTBSize,
		IBTBSize:     bpCfg.IBTBSize,
		CRSDepth:     bpCfg.CRSDepth,
		CRSRealistic: bpCfg.CRSRealistic,

		FTQCapacity:          dfeCfg.FTQCapacity,
		FTPerCycle:           dfeCfg.FTPerCycle,
		TakenCFsPerCycle:     dfeCfg.TakenCFsPerCycle,
		ForwardProgressLimit: dfeCfg.ForwardProgressLimit,

		UopCacheSets:        ucCfg.Sets,
		UopCacheAssoc:       ucCfg.Associativity,
		UopCacheLineWidth:   ucCfg.LineWidth,
		UopCacheReplacement: "lru",

		UopQueueCapacity: uqCfg.Capacity,
		UopQueueWidth:    uqCfg.Width,

		ConfWeight:       confCfg.Weight,
		ConfThreshold:    confCfg.Threshold,
		ConfSampleWindow: confCfg.SampleWindow,

		NumBPs: 1,
	}
}

// Load reads a JSON config file at path, starting from Default() so any
// field the file omits keeps its default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Validate checks that bht_size, btb_size, ftq_capacity, ft_per_cycle,
// taken_cfs_per_cycle, uop_cache_sets, uop_cache_assoc, uop_queue_capacity
// and num_bps are positive and the replacement policy name is recognized.
// Other fields are not checked.
func (c *Config) Validate() error {
	if c.BHTSize == 0 {
		return fmt.Errorf("bht_size must be > 0")
	}
	if c.BTBSize == 0 {
		return fmt.Errorf("btb_size must be > 0")
	}
	if c.FTQCapacity <= 0 {
		return fmt.Errorf("ftq_capacity must be > 0")
	}
	if c.FTPerCycle <= 0 {
		return fmt.Errorf("ft_per_cycle must be > 0")
	}
	if c.TakenCFsPerCycle <= 0 {
		return fmt.Errorf("taken_cfs_per_cycle must be > 0")
	}
	if c.UopCacheSets <= 0 || c.UopCacheAssoc <= 0 {
		return fmt.Errorf("uop_cache_sets and uop_cache_assoc must be > 0")
	}
	if c.UopQueueCapacity <= 0 {
		return fmt.Errorf("uop_queue_capacity must be > 0")
	}
	switch c.UopCacheReplacement {
	case "lru", "random", "round_robin", "rrip":
	default:
		return fmt.Errorf("unrecognized uop_cache_replacement: %q", c.UopCacheReplacement)
	}
	if c.NumBPs <= 0 {
		return fmt.Errorf("num_bps must be > 0")
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// BPConfig extracts the bp.Config subset of c.
func (c *Config) BPConfig() bp.Config {
	return bp.Config{
		GHRBits:      c.GHRBits,
		BHTSize:      c.BHTSize,
		BTBSize:      c.BTBSize,
		IBTBSize:     c.IBTBSize,
		CRSDepth:     c.CRSDepth,
		CRSRealistic: c.CRSRealistic,
	}
}

// DFEConfig extracts the dfe.Config subset of c.
func (c *Config) DFEConfig() dfe.Config {
	return dfe.Config{
		FTQCapacity:          c.FTQCapacity,
		FTPerCycle:           c.FTPerCycle,
		TakenCFsPerCycle:     c.TakenCFsPerCycle,
		ForwardProgressLimit: c.ForwardProgressLimit,
		Policy:               dfe.PrimaryDFE,
	}
}

// UopCacheConfig extracts the uopcache.Config subset of c.
func (c *Config) UopCacheConfig() uopcache.Config {
	policy := uopcache.PolicyLRU
	switch c.UopCacheReplacement {
	case "random":
		policy = uopcache.PolicyRandom
	case "round_robin":
		policy = uopcache.PolicyRoundRobin
	case "rrip":
		policy = uopcache.PolicyRRIP
	}
	return uopcache.Config{
		Sets:          c.UopCacheSets,
		Associativity: c.UopCacheAssoc,
		LineWidth:     c.UopCacheLineWidth,
		Policy:        policy,
	}
}

// UopQueueConfig extracts the uopqueue.Config subset of c.
func (c *Config) UopQueueConfig() uopqueue.Config {
	return uopqueue.Config{Capacity: c.UopQueueCapacity, Width: c.UopQueueWidth}
}

// ConfidenceConfig extracts the confidence.Config subset of c.
func (c *Config) ConfidenceConfig() confidence.Config {
	return confidence.Config{Weight: c.ConfWeight, Threshold: c.ConfThreshold, SampleWindow: c.ConfSampleWindow}
}
