package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPresets(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		wantTTL   time.Duration
		wantMax   int
		wantLiveQ bool
	}{
		{name: PresetDefault, policy: DefaultPolicy(), wantTTL: 300 * time.Second, wantMax: 1000, wantLiveQ: true},
		{name: PresetAggressive, policy: AggressivePolicy(), wantTTL: 1800 * time.Second, wantMax: 5000, wantLiveQ: true},
		{name: PresetShortLived, policy: ShortLivedPolicy(), wantTTL: 30 * time.Second, wantMax: 100, wantLiveQ: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.policy
			if p.DefaultTTL == nil || *p.DefaultTTL != tt.wantTTL {
				t.Errorf("DefaultTTL = %v, want %v", p.DefaultTTL, tt.wantTTL)
			}
			if p.MaxEntries == nil || *p.MaxEntries != tt.wantMax {
				t.Errorf("MaxEntries = %v, want %d", p.MaxEntries, tt.wantMax)
			}
			if p.InvalidateOnLiveQuery != tt.wantLiveQ {
				t.Errorf("InvalidateOnLiveQuery = %v", p.InvalidateOnLiveQuery)
			}
			if p.Eviction != EvictionLRU {
				t.Errorf("Eviction = %q", p.Eviction)
			}
			if err := p.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}

			byName, err := PresetByName(tt.name)
			if err != nil {
				t.Fatalf("PresetByName(%q) error = %v", tt.name, err)
			}
			if diff := cmp.Diff(p, byName); diff != "" {
				t.Errorf("PresetByName mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPresetByName_Unknown(t *testing.T) {
	_, err := PresetByName("turbo")
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("error = %v, want ErrInvalidPolicy", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{name: "zero value", policy: Policy{}},
		{name: "zero ttl", policy: Policy{DefaultTTL: Seconds(0)}},
		{name: "negative ttl", policy: Policy{DefaultTTL: Seconds(-1)}, wantErr: true},
		{name: "zero capacity", policy: Policy{MaxEntries: Entries(0)}, wantErr: true},
		{name: "unknown strategy", policy: Policy{Eviction: "lfu"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("error %v does not wrap ErrInvalidPolicy", err)
			}
		})
	}
}

func TestSeconds(t *testing.T) {
	if got := *Seconds(0.1); got != 100*time.Millisecond {
		t.Errorf("Seconds(0.1) = %v", got)
	}
}
