package temporalx

import (
	"time"

	"github.com/yungbote/playhub-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout      time.Duration
	DialMaxWait      time.Duration
	DialBackoff      time.Duration
	DialBackoffMax   time.Duration
	AutoRegister     bool
	RetentionDays    int
	NamespaceMaxWait time.Duration
}

// LoadConfig reads TEMPORAL_*; an empty Address disables Temporal and jobs go
// to the polling worker.
func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "playhub"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "playhub"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout:      envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait:      envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", time.Minute),
		DialBackoff:      envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond),
		DialBackoffMax:   envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second),
		AutoRegister:     envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:    envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
		NamespaceMaxWait: envutil.Duration("TEMPORAL_NAMESPACE_ENSURE_TIMEOUT", 10*time.Second),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) tlsRequested() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
