package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
)

// AppConfig is the static configuration consumed by the pipeline core. It is
// read once at startup; the location set is reloadable only via restart.
type AppConfig struct {
	// Upstream weather API.
	UpstreamBaseURL string
	ForecastDays    int

	// Locations and categories form the fan-out domain of every cycle.
	Locations  []pipeline.Location
	Categories []pipeline.Category

	// FetchInterval controls how often a cycle is triggered.
	FetchInterval time.Duration
	Concurrency   int
	HTTPTimeout   time.Duration

	// Independent backoff domains for fetch and delivery.
	SourceBackoff  pipeline.BackoffPolicy
	PublishBackoff pipeline.BackoffPolicy

	// Sink.
	KafkaTopic       string
	PublishBatchSize int
	SinkTimeout      time.Duration

	// Secret store.
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	APIKeySecret         string
	SinkCredentialSecret string

	// Optional Google geocoder key for locations missing coordinates.
	GeocoderAPIKey string

	// Recent-record buffer retention.
	StoreMaxHistory int
	StoreMaxAge     time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.UpstreamBaseURL = getenvDefault("WEATHER_API_BASE_URL", "https://api.weatherapi.com/v1")
	cfg.ForecastDays = getenvInt("WEATHER_FORECAST_DAYS", 1)

	interval, err := getenvDuration("FETCH_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	cfg.FetchInterval = interval

	cfg.Concurrency = getenvInt("FETCH_CONCURRENCY", 8)

	httpTimeout, err := getenvDuration("HTTP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = httpTimeout

	cfg.SourceBackoff, err = loadBackoff("SOURCE", pipeline.BackoffPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	cfg.PublishBackoff, err = loadBackoff("PUBLISH", pipeline.BackoffPolicy{
		MaxAttempts:     4,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     3 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	cfg.KafkaTopic = getenvDefault("KAFKA_TOPIC", "weather.records.v1")
	cfg.PublishBatchSize = getenvInt("PUBLISH_BATCH_SIZE", 50)

	sinkTimeout, err := getenvDuration("SINK_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cfg.SinkTimeout = sinkTimeout

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)

	cfg.APIKeySecret = getenvDefault("UPSTREAM_API_KEY_SECRET", "weatherapi/api-key")
	cfg.SinkCredentialSecret = getenvDefault("SINK_CREDENTIAL_SECRET", "kafka/connection")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 240) // roughly 2h at 30-second cycles
	maxAge, err := getenvDuration("STORE_MAX_AGE", "2h")
	if err != nil {
		return nil, err
	}
	cfg.StoreMaxAge = maxAge
	cfg.Port = getenvDefault("PORT", "8080")

	cats, err := loadCategories()
	if err != nil {
		return nil, err
	}
	cfg.Categories = cats

	locs, err := loadLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if cfg.GeocoderAPIKey != "" {
		resolveCoordinates(cfg.Locations, cfg.GeocoderAPIKey)
	}

	return cfg, nil
}

// loadBackoff reads one backoff policy from <prefix>_MAX_ATTEMPTS,
// <prefix>_INITIAL_BACKOFF, and <prefix>_MAX_BACKOFF.
func loadBackoff(prefix string, def pipeline.BackoffPolicy) (pipeline.BackoffPolicy, error) {
	p := def
	p.MaxAttempts = getenvInt(prefix+"_MAX_ATTEMPTS", def.MaxAttempts)
	if p.MaxAttempts < 1 {
		return pipeline.BackoffPolicy{}, fmt.Errorf("%s_MAX_ATTEMPTS must be >= 1", prefix)
	}

	initial, err := getenvDuration(prefix+"_INITIAL_BACKOFF", def.InitialInterval.String())
	if err != nil {
		return pipeline.BackoffPolicy{}, err
	}
	p.InitialInterval = initial

	max, err := getenvDuration(prefix+"_MAX_BACKOFF", def.MaxInterval.String())
	if err != nil {
		return pipeline.BackoffPolicy{}, err
	}
	p.MaxInterval = max
	return p, nil
}

// loadCategories parses the category list; default is all four.
func loadCategories() ([]pipeline.Category, error) {
	raw := os.Getenv("WEATHER_CATEGORIES")
	if raw == "" {
		return pipeline.AllCategories(), nil
	}

	var cats []pipeline.Category
	for _, s := range strings.Split(raw, ",") {
		cat, err := pipeline.ParseCategory(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid WEATHER_CATEGORIES: %w", err)
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

// locationsFile is the YAML shape of the locations configuration.
type locationsFile struct {
	Locations []pipeline.Location `yaml:"locations"`
}

// loadLocations reads the location set from LOCATIONS_FILE, falling back to
// the WEATHER_LOCATION_CITY/COUNTRY CSV pair.
func loadLocations() ([]pipeline.Location, error) {
	if path := os.Getenv("LOCATIONS_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading locations file: %w", err)
		}
		var f locationsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing locations file: %w", err)
		}
		if len(f.Locations) == 0 {
			return nil, fmt.Errorf("locations file %s defines no locations", path)
		}
		for i, loc := range f.Locations {
			if loc.City == "" && loc.ID == "" {
				return nil, fmt.Errorf("locations file entry %d has neither id nor city", i)
			}
		}
		return f.Locations, nil
	}

	city := os.Getenv("WEATHER_LOCATION_CITY")
	country := os.Getenv("WEATHER_LOCATION_COUNTRY")
	if city == "" {
		return nil, fmt.Errorf("no locations configured: set LOCATIONS_FILE or WEATHER_LOCATION_CITY")
	}
	cities := strings.Split(city, ",")
	countries := strings.Split(country, ",")
	if len(cities) != len(countries) {
		return nil, fmt.Errorf("number of cities and countries must be the same")
	}

	var locs []pipeline.Location
	for i := range cities {
		locs = append(locs, pipeline.Location{
			City:    strings.TrimSpace(cities[i]),
			Country: strings.TrimSpace(countries[i]),
		})
	}
	return locs, nil
}

// resolveCoordinates geocodes locations missing lat/lon so coordinate-only
// endpoints (air quality) can serve them. Failures are logged and the
// location kept; the air-quality client will fail that pair in isolation.
func resolveCoordinates(locs []pipeline.Location, apiKey string) {
	geocoder.ApiKey = apiKey

	for i := range locs {
		if locs[i].Lat != nil && locs[i].Lon != nil {
			continue
		}

		addr := geocoder.Address{
			City:    locs[i].City,
			Country: locs[i].Country,
		}
		result, err := geocoder.Geocoding(addr)
		if err != nil {
			log.Printf("geocoding failed for %s: %v", locs[i].Key(), err)
			continue
		}

		lat, lon := result.Latitude, result.Longitude
		locs[i].Lat = &lat
		locs[i].Lon = &lon
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
