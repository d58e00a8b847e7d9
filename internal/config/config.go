package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Events   EventsConfig   `mapstructure:"events"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	PublicURL       string        `mapstructure:"public_url"` // used by the memory blob store to build signed URLs
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects and configures the video metadata store.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // mongo | dynamodb | memory
	URI         string `mapstructure:"uri"`
	Name        string `mapstructure:"name"`
	DynamoTable string `mapstructure:"dynamo_table"`
	DynamoIndex string `mapstructure:"dynamo_owner_index"`
	Region      string `mapstructure:"region"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	Driver string    `mapstructure:"driver"` // s3 | gcs | memory
	S3     S3Config  `mapstructure:"s3"`
	GCS    GCSConfig `mapstructure:"gcs"`
	// SigningKey signs URLs issued by the memory driver.
	SigningKey string `mapstructure:"signing_key"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	BucketName      string `mapstructure:"bucket_name"`
	CredentialsFile string `mapstructure:"credentials_file"`
	GoogleAccessID  string `mapstructure:"google_access_id"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// UploadConfig carries the upload policy and URL lifetimes.
type UploadConfig struct {
	MaxBytes         int64         `mapstructure:"max_bytes"`
	URLTTL           time.Duration `mapstructure:"url_ttl"`
	DownloadURLTTL   time.Duration `mapstructure:"download_url_ttl"`
	DefaultListLimit int           `mapstructure:"default_list_limit"`
	MaxListLimit     int           `mapstructure:"max_list_limit"`
}

// CacheConfig configures the read URL cache. An empty address disables it.
type CacheConfig struct {
	RedisAddress  string        `mapstructure:"redis_address"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// EventsConfig configures lifecycle notifications. An empty queue URL disables them.
type EventsConfig struct {
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
	Region      string `mapstructure:"region"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A .env file is optional; real environment variables win over it.
	if err = godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, upload.url_ttl -> UPLOAD_URL_TTL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "video_uploads")
	v.SetDefault("database.dynamo_table", "videos")
	v.SetDefault("database.dynamo_owner_index", "ownerId-uploadedAt-index")
	v.SetDefault("database.region", "us-east-1")

	// Every key needs a default so AutomaticEnv can override it during Unmarshal.
	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.bucket_name", "videos")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.gcs.bucket_name", "")
	v.SetDefault("storage.gcs.credentials_file", "")
	v.SetDefault("storage.gcs.google_access_id", "")
	v.SetDefault("storage.signing_key", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "video-uploads")
	v.SetDefault("jwt.expiration", "1h")

	v.SetDefault("upload.max_bytes", 500<<20)
	v.SetDefault("upload.url_ttl", "1h")
	v.SetDefault("upload.download_url_ttl", "168h")
	v.SetDefault("upload.default_list_limit", 20)
	v.SetDefault("upload.max_list_limit", 100)

	v.SetDefault("cache.redis_address", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("events.sqs_queue_url", "")
	v.SetDefault("events.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
