// Package config assembles the single configuration record the phone
// core is built from: one phone per process, so there is no need for
// the functional-options style diago uses for its multi-transport
// server — just one flat record read from the environment once at
// startup.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved runtime configuration for a Frandline
// phone instance.
type Config struct {
	SIPUsername string
	SIPPassword string

	ServerName string
	ServerPort int
	// ServerAddr overrides DNS resolution of ServerName, e.g. for a PBX
	// behind a nonstandard resolver.
	ServerAddr string

	Realm       string
	UserAgent   string
	MaxForwards int

	RTPPort         int
	RTPPrivateNet   *net.IPNet
	AllowForeignRTP bool

	ChunkSize      int
	WindowInterval int
	SampleFreq     int

	ThreshMag        float64
	ThreshRelPeakRow float64
	ThreshRelPeakCol float64
	ThreshRelEnergy  float64

	HitsToBegin int
	MissesToEnd int

	PulseTimeout      time.Duration
	T9CommitTimeout   time.Duration
	DialCommitTimeout time.Duration
	CancelTimeout     time.Duration
	JitterWarmup      time.Duration
	RegisterExpiry    time.Duration

	// RTPRealHeaders and CodecTranscodePCMU answer the open question in
	// spec.md §9 about the PCMU/raw-PCM mismatch: both default false,
	// which preserves the literal wire format spec.md describes.
	RTPRealHeaders     bool
	CodecTranscodePCMU bool
}

// Default returns the compiled-in defaults from spec.md, with no
// credentials populated. Used directly by tests.
func Default() Config {
	_, privateNet, _ := net.ParseCIDR("10.100.0.0/16")
	return Config{
		ServerName: "pbx.frandline.com",
		ServerPort: 5061,

		Realm:       "asterisk",
		UserAgent:   "Frandline/0.1.0",
		MaxForwards: 70,

		RTPPort:         19512,
		RTPPrivateNet:   privateNet,
		AllowForeignRTP: false,

		ChunkSize:      1200,
		WindowInterval: 1200,
		SampleFreq:     48000,

		ThreshMag:        2e9,
		ThreshRelPeakRow: 2.5,
		ThreshRelPeakCol: 2.5,
		ThreshRelEnergy:  0.6,

		HitsToBegin: 2,
		MissesToEnd: 2,

		PulseTimeout:      150 * time.Millisecond,
		T9CommitTimeout:   3 * time.Second,
		DialCommitTimeout: 1 * time.Second,
		CancelTimeout:     5 * time.Second,
		JitterWarmup:      30 * time.Millisecond,
		RegisterExpiry:    3600 * time.Second,

		RTPRealHeaders:     false,
		CodecTranscodePCMU: false,
	}
}

// FromEnv loads credentials (and any overrides) from the environment on
// top of Default(). SIP_USERNAME and SIP_PASSWORD are required;
// SIP_SERVER_ADDRESS is optional, as per spec.md §6.
func FromEnv() (Config, error) {
	cfg := Default()

	cfg.SIPUsername = os.Getenv("SIP_USERNAME")
	if cfg.SIPUsername == "" {
		return Config{}, fmt.Errorf("config: SIP_USERNAME is required")
	}
	cfg.SIPPassword = os.Getenv("SIP_PASSWORD")
	if cfg.SIPPassword == "" {
		return Config{}, fmt.Errorf("config: SIP_PASSWORD is required")
	}
	cfg.ServerAddr = os.Getenv("SIP_SERVER_ADDRESS")

	if v := os.Getenv("RTP_REAL_HEADERS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: RTP_REAL_HEADERS: %w", err)
		}
		cfg.RTPRealHeaders = b
	}
	if v := os.Getenv("CODEC_TRANSCODE_PCMU"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: CODEC_TRANSCODE_PCMU: %w", err)
		}
		cfg.CodecTranscodePCMU = b
	}
	if v := os.Getenv("ALLOW_FOREIGN_RTP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ALLOW_FOREIGN_RTP: %w", err)
		}
		cfg.AllowForeignRTP = b
	}

	return cfg, nil
}

// ServerHostPort returns the host:port the TLS transport should dial,
// honoring ServerAddr as an override of ServerName.
func (c Config) ServerHostPort() string {
	host := c.ServerName
	if c.ServerAddr != "" {
		host = c.ServerAddr
	}
	return net.JoinHostPort(host, strconv.Itoa(c.ServerPort))
}
