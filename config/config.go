package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del agente.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Chains    ChainsConfig    `yaml:"chains"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Tokens    TokensConfig    `yaml:"tokens"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// AgentConfig controla el ciclo de evaluación de cada cuenta.
type AgentConfig struct {
	CycleMinutes     int     `yaml:"cycle_minutes"`      // periodo nominal del ciclo (60)
	CheckSeconds     int     `yaml:"check_seconds"`      // intervalo de observación del pause flag (≤ 60)
	CandleLimit      int     `yaml:"candle_limit"`       // velas 1h por evaluación técnica
	WhaleTxThreshold float64 `yaml:"whale_tx_threshold"` // USD por tx para contar como ballena
}

// ChainsConfig contiene los endpoints de las chains de custodia y venue.
type ChainsConfig struct {
	CustodyLCD   string `yaml:"custody_lcd"`   // REST de la chain de custodia
	VenueLCD     string `yaml:"venue_lcd"`     // REST de la chain del venue
	VenueIndexer string `yaml:"venue_indexer"` // API del exchange de derivados
	IBCChannel   string `yaml:"ibc_channel"`   // canal IBC custodia → venue
}

// SentimentConfig configura el proveedor de scoring de texto.
type SentimentConfig struct {
	APIBase    string `yaml:"api_base"`
	Model      string `yaml:"model"`
	NewsBase   string `yaml:"news_base"`   // búsqueda de titulares
	SocialBase string `yaml:"social_base"` // búsqueda de posts
	APIKey     string `yaml:"-"`           // solo por env: SENTIMENT_API_KEY
}

// TokensConfig configura el descubrimiento del universo de activos.
type TokensConfig struct {
	RegistryURL    string `yaml:"registry_url"`
	DexScreenerURL string `yaml:"dexscreener_url"`
	CoinGeckoURL   string `yaml:"coingecko_url"`
	CoinGeckoKey   string `yaml:"-"` // opcional, por env: COINGECKO_API_KEY
}

// HTTPConfig configura la superficie de control.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe, aplica overrides de entorno y valida credenciales requeridas.
// Un fallo de validación impide el arranque del proceso.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return &cfg, nil
}

// CyclePeriod devuelve el periodo del ciclo como time.Duration.
func (c *Config) CyclePeriod() time.Duration {
	return time.Duration(c.Agent.CycleMinutes) * time.Minute
}

// CheckInterval devuelve el intervalo de observación del pause flag.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Agent.CheckSeconds) * time.Second
}

// validate comprueba las credenciales sin las que el proceso no debe
// arrancar.
func (c *Config) validate() error {
	if c.Sentiment.APIKey == "" {
		return fmt.Errorf("missing required environment variable SENTIMENT_API_KEY")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must not be empty")
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si
// están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTIMENT_API_KEY"); v != "" {
		cfg.Sentiment.APIKey = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.Tokens.CoinGeckoKey = v
	}
	if v := os.Getenv("CUSTODY_LCD"); v != "" {
		cfg.Chains.CustodyLCD = v
	}
	if v := os.Getenv("VENUE_INDEXER"); v != "" {
		cfg.Chains.VenueIndexer = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Agent.CycleMinutes <= 0 {
		cfg.Agent.CycleMinutes = 60
	}
	if cfg.Agent.CheckSeconds <= 0 || cfg.Agent.CheckSeconds > 60 {
		cfg.Agent.CheckSeconds = 60
	}
	if cfg.Agent.CandleLimit <= 0 {
		cfg.Agent.CandleLimit = 50
	}
	if cfg.Agent.WhaleTxThreshold <= 0 {
		cfg.Agent.WhaleTxThreshold = 500000
	}
	if cfg.Chains.CustodyLCD == "" {
		cfg.Chains.CustodyLCD = "https://rest.cosmos.network"
	}
	if cfg.Chains.VenueLCD == "" {
		cfg.Chains.VenueLCD = "https://lcd.injective.network"
	}
	if cfg.Chains.VenueIndexer == "" {
		cfg.Chains.VenueIndexer = "https://api.injective.exchange"
	}
	if cfg.Chains.IBCChannel == "" {
		cfg.Chains.IBCChannel = "channel-141"
	}
	if cfg.Sentiment.APIBase == "" {
		cfg.Sentiment.APIBase = "https://api.secretai.network"
	}
	if cfg.Sentiment.Model == "" {
		cfg.Sentiment.Model = "deepseek-coder:33b"
	}
	if cfg.Sentiment.NewsBase == "" {
		cfg.Sentiment.NewsBase = "https://cryptopanic.com/api/v1"
	}
	if cfg.Sentiment.SocialBase == "" {
		cfg.Sentiment.SocialBase = "https://api.x.com/2"
	}
	if cfg.Tokens.RegistryURL == "" {
		cfg.Tokens.RegistryURL = "https://raw.githubusercontent.com/cosmos/chain-registry/master/chain.json"
	}
	if cfg.Tokens.DexScreenerURL == "" {
		cfg.Tokens.DexScreenerURL = "https://api.dexscreener.com/latest/dex/search"
	}
	if cfg.Tokens.CoinGeckoURL == "" {
		cfg.Tokens.CoinGeckoURL = "https://api.coingecko.com/api/v3/coins/markets"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 5000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "atombot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
