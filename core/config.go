package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database engines
const (
	EngineBolt     = "bolt"
	EnginePostgres = "postgres"
)

// Upload backends
const (
	UploadsDisk  = "disk"
	UploadsMinio = "minio"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CookieSecure              bool
		PublicCatalog             bool // anonymous users may list courses & announcements
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string
		Path          string // bolt file
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MinioConfig struct {
		Endpoint  string
		AccessKey string
		SecretKey string
		Bucket    string
		UseSSL    bool
	}

	UploadsConfig struct {
		Backend         string
		Dir             string
		MaxMaterialSize int64
		MaxImageSize    int64
		MaxWorkSize     int64 // assignments & submissions
		Minio           MinioConfig
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Uploads  UploadsConfig
		Redis    RedisConfig
	}
)

// Address returns the postgres "host:port" address.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Darasa")
	v.SetDefault("secretKey", "b@7q$+ne0%-x!w2#kd94=zrm+u8h(&l3fo5ayvp1cjg6t*is")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Darasa <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 60*24*time.Hour)
	v.SetDefault("server.cookieSecure", false)
	v.SetDefault("server.publicCatalog", true)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", EngineBolt)
	v.SetDefault("database.path", filepath.Join("data", "darasa.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "darasa")
	v.SetDefault("database.user", "darasa")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("uploads.backend", UploadsDisk)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.maxMaterialSize", 50<<20)
	v.SetDefault("uploads.maxImageSize", 5<<20)
	v.SetDefault("uploads.maxWorkSize", 100<<20)
	v.SetDefault("uploads.minio.endpoint", "localhost:9000")
	v.SetDefault("uploads.minio.accessKey", "")
	v.SetDefault("uploads.minio.secretKey", "")
	v.SetDefault("uploads.minio.bucket", "darasa")
	v.SetDefault("uploads.minio.useSSL", false)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// NewConfig loads the app configuration.
// Values are read from `<ENV>_<KEY>` environment variables (eg. PROD_DATABASE_ENGINE),
// optionally seeded from `config/.env.<env>`.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return newConfig(env, v)
}

func newConfig(env string, v *viper.Viper) *Config {
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatal(fmt.Errorf("config.defaultFromEmail: %v", err))
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: *from,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			CookieSecure:              v.GetBool("server.cookieSecure"),
			PublicCatalog:             v.GetBool("server.publicCatalog"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Path:          v.GetString("database.path"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Uploads: UploadsConfig{
			Backend:         v.GetString("uploads.backend"),
			Dir:             v.GetString("uploads.dir"),
			MaxMaterialSize: v.GetInt64("uploads.maxMaterialSize"),
			MaxImageSize:    v.GetInt64("uploads.maxImageSize"),
			MaxWorkSize:     v.GetInt64("uploads.maxWorkSize"),
			Minio: MinioConfig{
				Endpoint:  v.GetString("uploads.minio.endpoint"),
				AccessKey: v.GetString("uploads.minio.accessKey"),
				SecretKey: v.GetString("uploads.minio.secretKey"),
				Bucket:    v.GetString("uploads.minio.bucket"),
				UseSSL:    v.GetBool("uploads.minio.useSSL"),
			},
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}
}
