package ingestion_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devassist/agentcore/pkg/ingestion"
)

func TestAdaptiveDelay(t *testing.T) {
	cases := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"fast run", 2 * time.Minute, 10 * time.Minute},
		{"just under 5m boundary", 4*time.Minute + 59*time.Second, 10 * time.Minute},
		{"at 5m boundary", 5 * time.Minute, 30 * time.Minute},
		{"mid run", 20 * time.Minute, 30 * time.Minute},
		{"at 30m boundary", 30 * time.Minute, 60 * time.Minute},
		{"long run", time.Hour, 60 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ingestion.AdaptiveDelay(tc.in))
		})
	}
}

func TestIsNoEligibleConnection(t *testing.T) {
	assert.True(t, ingestion.IsNoEligibleConnection(ingestion.ErrNoEligibleConnection()))
	assert.False(t, ingestion.IsNoEligibleConnection(assertError{}))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
