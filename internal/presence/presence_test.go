package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	devicedomain "kiosk-engine/internal/device/domain"
)

func deviceAt(beat *time.Time, active bool) *devicedomain.Device {
	return &devicedomain.Device{ID: "d1", KioskID: "k1", IsActive: active, LastHeartbeatAt: beat}
}

func TestIsOnline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}
	th := DefaultThresholds()

	tests := []struct {
		name   string
		device *devicedomain.Device
		active bool
		want   bool
	}{
		{"nil device", nil, false, false},
		{"never heartbeated", deviceAt(nil, true), false, false},
		{"disabled", deviceAt(ago(time.Second), false), false, false},
		{"fresh idle", deviceAt(ago(10*time.Second), true), false, true},
		{"100s idle", deviceAt(ago(100*time.Second), true), false, false},
		{"100s with open session", deviceAt(ago(100*time.Second), true), true, true},
		{"exactly idle threshold", deviceAt(ago(90*time.Second), true), false, true},
		{"exactly active threshold", deviceAt(ago(120*time.Second), true), true, true},
		{"past active threshold", deviceAt(ago(121*time.Second), true), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOnline(tt.device, now, tt.active, th))
		})
	}
}

func TestIsOnline_CustomThresholds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	beat := now.Add(-20 * time.Second)
	th := Thresholds{Idle: 15 * time.Second, Active: 30 * time.Second}
	assert.False(t, IsOnline(deviceAt(&beat, true), now, false, th), "idle kiosk offline past 15s")
	assert.True(t, IsOnline(deviceAt(&beat, true), now, true, th), "active kiosk online within 30s")
}
