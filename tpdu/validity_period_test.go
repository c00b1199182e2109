package tpdu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidityPeriodOctet(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		duration time.Duration
		octet    byte
	}{
		"default 4 days":   {4 * 24 * time.Hour, 0xAA},
		"under 5 minutes":  {2 * time.Minute, 0x00},
		"30 minutes":       {30 * time.Minute, 0x06},
		"exactly one week": {7 * 24 * time.Hour, byte(7 + 166)},
		"cap at 62 weeks":  {100 * 7 * 24 * time.Hour, 0xFF},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.octet, ValidityPeriod(tc.duration).Octet())
		})
	}
}

func TestDefaultValidityPeriodOctet(t *testing.T) {
	t.Parallel()
	assert.Equal(t, byte(0xAA), DefaultValidityPeriod.Octet())
}
