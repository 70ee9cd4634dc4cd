package fetch

import (
	"testing"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
)

func TestBatchConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   BatchConfig
		want BatchConfig
	}{
		{
			name: "zero values take defaults",
			in:   BatchConfig{},
			want: DefaultBatchConfig(),
		},
		{
			name: "zero max_parallel inherits the scheduler cap",
			in:   BatchConfig{MaxParallel: 0, CachePolicy: cache.PolicyBoth},
			want: BatchConfig{MaxRetries: DefaultMaxRetries, Timeout: DefaultTimeout, CachePolicy: cache.PolicyBoth},
		},
		{
			name: "values above range are clamped",
			in:   BatchConfig{MaxParallel: 50, MaxRetries: 9, Timeout: time.Hour, CachePolicy: cache.PolicyFile},
			want: BatchConfig{MaxParallel: MaxParallelLimit, MaxRetries: MaxRetriesLimit, Timeout: MaxTimeout, CachePolicy: cache.PolicyFile},
		},
		{
			name: "values below range are clamped",
			in:   BatchConfig{MaxParallel: -1, MaxRetries: -2, Timeout: time.Second},
			want: BatchConfig{MaxParallel: MinMaxParallel, MaxRetries: MinMaxRetries, Timeout: MinTimeout, CachePolicy: cache.DefaultPolicy},
		},
		{
			name: "in range values are kept",
			in:   BatchConfig{MaxParallel: 3, MaxRetries: 2, Timeout: 30 * time.Second, CachePolicy: cache.PolicyBoth, SlotName: "s"},
			want: BatchConfig{MaxParallel: 3, MaxRetries: 2, Timeout: 30 * time.Second, CachePolicy: cache.PolicyBoth, SlotName: "s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultBatchConfig(t *testing.T) {
	cfg := DefaultBatchConfig()
	if cfg.MaxParallel != 0 || cfg.MaxRetries != 3 || cfg.Timeout != 10*time.Second {
		t.Errorf("DefaultBatchConfig() = %+v", cfg)
	}
	if cfg.CachePolicy != cache.PolicyStore {
		t.Errorf("CachePolicy = %s, want store", cfg.CachePolicy)
	}
}
