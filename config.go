package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-kit/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/thraxil/imgsource/kv"
	"github.com/thraxil/imgsource/source"
	"github.com/thraxil/imgsource/store"
)

// the structure of the config file
// where config info is stored
type configData struct {
	Port                int64             `yaml:"port"`
	BufferSize          int               `yaml:"buffer_size"`
	HTTPTimeout         int               `yaml:"http_timeout"`
	ConnectTimeout      int               `yaml:"connect_timeout"`
	UserAgent           string            `yaml:"user_agent"`
	MaxInfoBytes        int64             `yaml:"max_info_bytes"`
	StoreDirectory      string            `yaml:"store_directory"`
	ResourceDirectories map[string]string `yaml:"resource_directories"`
	RedisAddr           string            `yaml:"redis_addr"`
	RedisPassword       string            `yaml:"redis_password"`
	RedisDB             int               `yaml:"redis_db"`
	DisableData         bool              `yaml:"disable_data"`
	VerifierSleep       int               `yaml:"verifier_sleep"`

	// what clients may ask for through the views
	FileRoots            []string `yaml:"file_roots"`
	AllowedHosts         []string `yaml:"allowed_hosts"`
	AllowPrivateNetworks bool     `yaml:"allow_private_networks"`
}

func (c configData) MyConfig() siteConfig {
	port := c.Port
	if port < 1 {
		port = 8080
	}
	bufferSize := c.BufferSize
	if bufferSize < 1 {
		bufferSize = source.DefaultBufferSize
	}
	httpTimeout := c.HTTPTimeout
	if httpTimeout < 1 {
		httpTimeout = 20
	}
	connectTimeout := c.ConnectTimeout
	if connectTimeout < 1 {
		connectTimeout = 5
	}
	maxInfoBytes := c.MaxInfoBytes
	if maxInfoBytes < 1 {
		maxInfoBytes = 32 << 20
	}
	// scheme keys are matched lowercased; the built-in schemes can't be
	// taken over
	dirs := make(map[string]string, len(c.ResourceDirectories))
	for scheme, dir := range c.ResourceDirectories {
		scheme = strings.ToLower(scheme)
		if source.Classify(scheme) != source.StrategyOther || dir == "" {
			continue
		}
		dirs[scheme] = dir
	}

	return siteConfig{
		Port:                port,
		BufferSize:          bufferSize,
		HTTPTimeout:         time.Duration(httpTimeout) * time.Second,
		ConnectTimeout:      time.Duration(connectTimeout) * time.Second,
		UserAgent:           c.UserAgent,
		MaxInfoBytes:        maxInfoBytes,
		StoreDirectory:      c.StoreDirectory,
		ResourceDirectories: dirs,
		RedisAddr:           c.RedisAddr,
		RedisPassword:       c.RedisPassword,
		RedisDB:             c.RedisDB,
		EnableData:          !c.DisableData,
		VerifierSleep:       time.Duration(c.VerifierSleep) * time.Second,

		FileRoots:            c.FileRoots,
		AllowedHosts:         c.AllowedHosts,
		AllowPrivateNetworks: c.AllowPrivateNetworks,
	}
}

// the settled, defaulted version of configData
type siteConfig struct {
	Port                int64
	BufferSize          int
	HTTPTimeout         time.Duration
	ConnectTimeout      time.Duration
	UserAgent           string
	MaxInfoBytes        int64
	StoreDirectory      string
	ResourceDirectories map[string]string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	EnableData          bool
	VerifierSleep       time.Duration

	FileRoots            []string
	AllowedHosts         []string
	AllowPrivateNetworks bool
}

// VerifierEnabled is true when there is a store to verify and a sleep
// between passes.
func (s siteConfig) VerifierEnabled() bool {
	return s.StoreDirectory != "" && s.VerifierSleep > 0
}

// Policy is what the views check identifiers against. With no FileRoots
// and no AllowedHosts only custom schemes can be fetched.
func (s siteConfig) Policy() *accessPolicy {
	return newAccessPolicy(s.FileRoots, s.AllowedHosts)
}

// Source builds the dispatcher s describes, with logging and metrics.
// cleanup releases the redis client, if one was made.
func (s siteConfig) Source(logger log.Logger, reg prometheus.Registerer) (src source.Source, cleanup func(), err error) {
	cleanup = func() {}
	files := source.NewFileOpener(s.BufferSize)
	opts := &source.HTTPOptions{
		Timeout:        s.HTTPTimeout,
		ConnectTimeout: s.ConnectTimeout,
		UserAgent:      s.UserAgent,
		CheckRedirect:  s.Policy().checkRedirect,
	}
	if !s.AllowPrivateNetworks {
		opts.DialControl = denyPrivateAddresses
	}
	network := source.NewHTTPOpener(opts)

	resolvers := make(map[string]source.Resolver)
	if s.EnableData {
		resolvers["data"] = source.DataResolver{}
	}
	for scheme, dir := range s.ResourceDirectories {
		resolvers[scheme] = source.NewDirResolver(dir, files)
	}
	if s.StoreDirectory != "" {
		resolvers[store.Scheme] = store.NewResolver(s.StoreDirectory, files)
	}
	if s.RedisAddr != "" {
		client := kv.NewClient(s.RedisAddr, s.RedisPassword, s.RedisDB)
		resolvers[kv.Scheme] = kv.NewResolver(client)
		cleanup = func() { _ = client.Close() }
	}
	mux := source.NewMux(resolvers)
	_ = logger.Log("level", "INFO", "msg", "custom schemes", "schemes", strings.Join(mux.Schemes(), ","))

	src = source.WithLogging(source.New(network, files, mux), logger)
	src, err = source.WithMetrics(src, reg)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("registering source metrics: %w", err)
	}
	return src, cleanup, nil
}

const configName = "imgsource/config.json"

// findConfig picks the -config flag value when given, otherwise the first
// config.json in the XDG config dirs. "" means run on defaults.
func findConfig(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	p, err := xdg.SearchConfigFile(configName)
	if err != nil {
		return ""
	}
	return p
}

// loadConfig reads a JSON or YAML config file, substituting ${VAR} and
// ${VAR:-default} from the environment first.
func loadConfig(path string) (configData, error) {
	var f configData
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return f, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	content := []byte(substituteEnvVars(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &f)
	case ".json", "":
		err = json.Unmarshal(content, &f)
	default:
		return f, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return f, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return f, nil
}

// loadEnvFiles loads the .env files that exist, in order. Variables that
// are already set are left alone.
func loadEnvFiles(logger log.Logger, envFiles ...string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			_ = logger.Log("level", "WARN", "msg", "could not load env file", "file", envFile, "error", err.Error())
			continue
		}
		_ = logger.Log("level", "INFO", "msg", "loaded env file", "file", envFile)
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default}
func substituteEnvVars(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if value := os.Getenv(sub[1]); value != "" {
			return value
		}
		return sub[2]
	})
}
