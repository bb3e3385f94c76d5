package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onchain-voice-lab/internal/wallet"
)

// DefaultFile is read when CHATBOT_CONFIG is unset and the file exists.
const DefaultFile = "chatbot.yaml"

// Config is the complete chatbot configuration.
type Config struct {
	Mode     string         `yaml:"mode"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Audio    AudioConfig    `yaml:"audio"`
	Router   RouterConfig   `yaml:"router"`
	Agent    AgentConfig    `yaml:"agent"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Server   ServerConfig   `yaml:"server"`
	Path     string         `yaml:"-"`
}

type RealtimeConfig struct {
	URL            string        `yaml:"url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"-"`
	Instructions   string        `yaml:"instructions"`
	Voice          string        `yaml:"voice"`
	Modalities     []string      `yaml:"modalities"`
	TurnDetection  string        `yaml:"turn_detection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

type AudioConfig struct {
	SampleRate   int           `yaml:"sample_rate"`
	Channels     int           `yaml:"channels"`
	FrameMs      int           `yaml:"frame_ms"`
	InputFormat  string        `yaml:"input_format"`
	InputDevice  string        `yaml:"input_device"`
	FFmpegPath   string        `yaml:"ffmpeg_path"`
	FFplayPath   string        `yaml:"ffplay_path"`
	TestDuration time.Duration `yaml:"test_duration"`
	TestWAVPath  string        `yaml:"test_wav_path"`
}

type RouterConfig struct {
	Keywords []string `yaml:"keywords"`
}

type AgentConfig struct {
	ThreadID         string        `yaml:"thread_id"`
	Instructions     string        `yaml:"instructions"`
	MaxSteps         int           `yaml:"max_steps"`
	AutonomousPrompt string        `yaml:"autonomous_prompt"`
	Interval         time.Duration `yaml:"interval"`
}

type WalletConfig struct {
	DataFile  string `yaml:"data_file"`
	APIURL    string `yaml:"api_url"`
	AppID     string `yaml:"-"`
	AppSecret string `yaml:"-"`
	ChainType string `yaml:"chain_type"`
	NetworkID string `yaml:"network_id"`
	ChainID   int64  `yaml:"chain_id"`
	RPCURL    string `yaml:"rpc_url"`
	FaucetURL string `yaml:"faucet_url"`
}

// ServiceConfig maps the wallet section onto the wallet service settings.
func (c WalletConfig) ServiceConfig() wallet.Config {
	return wallet.Config{
		DataFile:  c.DataFile,
		APIURL:    c.APIURL,
		AppID:     c.AppID,
		AppSecret: c.AppSecret,
		ChainType: c.ChainType,
		NetworkID: c.NetworkID,
		ChainID:   c.ChainID,
		RPCURL:    c.RPCURL,
		FaucetURL: c.FaucetURL,
	}
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultKeywords mark a transcript as a blockchain request.
var DefaultKeywords = []string{
	"blockchain", "wallet", "token", "nft", "transfer", "balance", "deploy",
	"contract", "eth", "transaction", "faucet", "funds", "network", "address",
}

const defaultInstructions = "You are a helpful agent that can interact onchain using the Coinbase Developer Platform AgentKit. " +
	"You are empowered to interact onchain using your tools. If you ever need funds, you can request " +
	"them from the faucet if you are on network ID 'base-sepolia'. If not, you can provide your wallet " +
	"details and request funds from the user. Before executing your first action, get the wallet details " +
	"to see what network you're on. If there is a 5XX (internal) HTTP error code, ask the user to try " +
	"again later. If someone asks you to do something you can't do with your currently available tools, " +
	"you must say so, and encourage them to implement it themselves using the CDP SDK + Agentkit, " +
	"recommend they go to docs.cdp.coinbase.com for more information. Be concise and helpful with your " +
	"responses. Refrain from restating your tools' descriptions unless it is explicitly requested."

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Realtime: RealtimeConfig{
			URL:            "wss://api.openai.com/v1/realtime",
			Model:          "gpt-4o-realtime-preview",
			Voice:          "alloy",
			Modalities:     []string{"text", "audio"},
			TurnDetection:  "server_vad",
			ConnectTimeout: 10 * time.Second,
			MaxRetries:     3,
			RetryDelay:     2 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:   24000,
			Channels:     1,
			FrameMs:      20,
			FFmpegPath:   "ffmpeg",
			FFplayPath:   "ffplay",
			TestDuration: 3 * time.Second,
		},
		Router: RouterConfig{Keywords: append([]string(nil), DefaultKeywords...)},
		Agent: AgentConfig{
			ThreadID:     "CDP Agentkit Chatbot Example!",
			Instructions: defaultInstructions,
			MaxSteps:     10,
			AutonomousPrompt: "Be creative and do something interesting on the blockchain. " +
				"Choose an action or set of actions and execute it.",
			Interval: 10 * time.Second,
		},
		Wallet: WalletConfig{
			DataFile:  "wallet_data.txt",
			APIURL:    "https://api.privy.io",
			ChainType: "ethereum",
			NetworkID: "base-sepolia",
			ChainID:   84532,
			RPCURL:    "https://sepolia.base.org",
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CHATBOT_CONFIG (or chatbot.yaml when present) and environment overrides,
// in that order.
func Load() (Config, error) {
	cfg := Default()
	path := os.Getenv("CHATBOT_CONFIG")
	required := path != ""
	if path == "" {
		path = DefaultFile
	}
	if err := cfg.mergeFile(path); err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	} else {
		cfg.Path = path
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Mode, "MODE")
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))

	setString(&c.Realtime.APIKey, "OPENAI_API_KEY")
	setString(&c.Realtime.URL, "REALTIME_URL")
	setString(&c.Realtime.Model, "REALTIME_MODEL")
	setString(&c.Realtime.Voice, "REALTIME_VOICE")
	setString(&c.Realtime.Instructions, "REALTIME_INSTRUCTIONS")
	setInt(&c.Realtime.MaxRetries, "REALTIME_MAX_RETRIES")
	setDuration(&c.Realtime.RetryDelay, "REALTIME_RETRY_DELAY")
	setDuration(&c.Realtime.ConnectTimeout, "REALTIME_CONNECT_TIMEOUT")

	setInt(&c.Audio.SampleRate, "AUDIO_SAMPLE_RATE")
	setString(&c.Audio.InputFormat, "AUDIO_INPUT_FORMAT")
	setString(&c.Audio.InputDevice, "AUDIO_INPUT_DEVICE")
	setString(&c.Audio.FFmpegPath, "FFMPEG_PATH")
	setString(&c.Audio.FFplayPath, "FFPLAY_PATH")
	setString(&c.Audio.TestWAVPath, "MIC_TEST_WAV")

	if v := os.Getenv("ROUTER_KEYWORDS"); v != "" {
		var kws []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kws = append(kws, k)
			}
		}
		c.Router.Keywords = kws
	}

	setString(&c.Agent.ThreadID, "AGENT_THREAD_ID")
	setInt(&c.Agent.MaxSteps, "AGENT_MAX_STEPS")
	setDuration(&c.Agent.Interval, "AGENT_INTERVAL")

	setString(&c.Wallet.DataFile, "WALLET_DATA_FILE")
	setString(&c.Wallet.APIURL, "WALLET_API_URL")
	setString(&c.Wallet.AppID, "PRIVY_APP_ID")
	setString(&c.Wallet.AppSecret, "PRIVY_APP_SECRET")
	setString(&c.Wallet.NetworkID, "NETWORK_ID")
	setString(&c.Wallet.RPCURL, "RPC_URL")
	setString(&c.Wallet.FaucetURL, "FAUCET_URL")
	if v, err := strconv.ParseInt(os.Getenv("CHAIN_ID"), 10, 64); err == nil && v > 0 {
		c.Wallet.ChainID = v
	}

	setString(&c.Server.Addr, "SERVER_ADDR")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_ADDR") == "" {
		c.Server.Addr = ":" + port
	}
}

// Validate rejects settings the loops cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Realtime.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("realtime.max_retries must be at least 1, got %d", c.Realtime.MaxRetries))
	}
	if c.Realtime.RetryDelay < 0 {
		errs = append(errs, errors.New("realtime.retry_delay must not be negative"))
	}
	if c.Audio.SampleRate <= 0 || c.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio sample_rate and frame_ms must be positive, got %d and %d", c.Audio.SampleRate, c.Audio.FrameMs))
	}
	if c.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1, got %d", c.Audio.Channels))
	}
	if len(c.Router.Keywords) == 0 {
		errs = append(errs, errors.New("router.keywords must not be empty"))
	}
	if c.Agent.MaxSteps < 1 {
		errs = append(errs, errors.New("agent.max_steps must be at least 1"))
	}
	return errors.Join(errs...)
}

// RealtimeURL is the stream endpoint with the model query parameter.
func (c RealtimeConfig) RealtimeURL() string {
	if c.Model == "" || strings.Contains(c.URL, "model=") {
		return c.URL
	}
	sep := "?"
	if strings.Contains(c.URL, "?") {
		sep = "&"
	}
	return c.URL + sep + "model=" + c.Model
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

// setDuration accepts Go durations ("2s") or bare milliseconds.
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
	}
}
