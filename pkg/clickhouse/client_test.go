package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func configWith(opts ...ClientOption) ClientConfig {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(cfg)
	}
	return *cfg
}

func TestBuildDSN(t *testing.T) {
	cfg := configWith(
		WithHost("ch"),
		WithPort(9000),
		WithDatabase("aelc"),
		WithCredentials("default", "secret"),
		WithTimeouts(5*time.Second, 30*time.Second, 30*time.Second),
		WithMaxExecutionTime(time.Minute),
		WithAsyncInsert(true, true),
	)
	assert.Equal(t,
		"clickhouse://default:secret@ch:9000/aelc?async_insert=1&dial_timeout=5s&max_execution_time=60&read_timeout=30s&wait_for_async_insert=1",
		buildDSN(cfg))
}

func TestBuildDSNHTTPAndSettings(t *testing.T) {
	cfg := configWith(
		WithHost("ch"),
		WithPort(8123),
		WithHTTP(true),
		WithTimeouts(0, 0, 0),
		WithCompression("lz4"),
		WithSetting("max_threads", "4"),
	)
	assert.Equal(t, "clickhouse+http://default:@ch:8123/default?compress=lz4&max_threads=4", buildDSN(cfg))
}

func TestBuildDSNEscapesPassword(t *testing.T) {
	cfg := configWith(WithHost("ch"), WithCredentials("u", "p@ss/w"), WithTimeouts(0, 0, 0))
	assert.Equal(t, "clickhouse://u:p%40ss%2Fw@ch:9000/default", buildDSN(cfg))
}

func TestZeroPortAndDatabaseKeepDefaults(t *testing.T) {
	cfg := configWith(WithHost("ch"), WithPort(0), WithDatabase(""))
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "default", cfg.Database)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}
