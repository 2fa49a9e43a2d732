package reading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/internal/provider"
)

func TestComputeAQI(t *testing.T) {
	tests := []struct {
		name         string
		pollutants   map[string]float64
		wantAQI      int
		wantDominant string
		wantErr      bool
	}{
		{
			name:         "single pollutant",
			pollutants:   map[string]float64{"pm25": 42},
			wantAQI:      42,
			wantDominant: "pm25",
		},
		{
			name:         "maximum sub-index wins",
			pollutants:   map[string]float64{"pm25": 42, "pm10": 151, "o3": 33},
			wantAQI:      151,
			wantDominant: "pm10",
		},
		{
			name:         "tie broken by name",
			pollutants:   map[string]float64{"pm25": 80, "o3": 80},
			wantAQI:      80,
			wantDominant: "o3",
		},
		{
			name:         "fractional value rounds",
			pollutants:   map[string]float64{"pm25": 57.6},
			wantAQI:      58,
			wantDominant: "pm25",
		},
		{
			name:         "zero is valid",
			pollutants:   map[string]float64{"pm25": 0},
			wantAQI:      0,
			wantDominant: "pm25",
		},
		{
			name:         "upper bound is valid",
			pollutants:   map[string]float64{"pm25": 500},
			wantAQI:      500,
			wantDominant: "pm25",
		},
		{
			name:       "above range rejected",
			pollutants: map[string]float64{"pm25": 42, "pm10": 501},
			wantErr:    true,
		},
		{
			name:       "negative rejected",
			pollutants: map[string]float64{"pm25": -1},
			wantErr:    true,
		},
		{
			name:       "empty rejected",
			pollutants: map[string]float64{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aqi, dominant, err := ComputeAQI(tt.pollutants)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pipeline.IsValidation(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantAQI, aqi)
			assert.Equal(t, tt.wantDominant, dominant)
		})
	}
}

func TestNormalizeHour(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "truncates minutes and seconds",
			in:   time.Date(2026, 8, 25, 13, 47, 12, 0, time.UTC),
			want: time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "already on the hour",
			in:   time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC),
			want: time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "converts to UTC first",
			in:   time.Date(2026, 8, 25, 22, 30, 0, 0, seoul),
			want: time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeHour(tt.in)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestEqualContent(t *testing.T) {
	ts := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)
	base := &Reading{
		StationIdx: "1437",
		TS:         ts,
		AQI:        42,
		Dominant:   "pm25",
		Pollutants: map[string]float64{"pm25": 42, "o3": 12},
		FetchedAt:  ts.Add(5 * time.Minute),
	}

	t.Run("identical content matches", func(t *testing.T) {
		other := *base
		other.FetchedAt = ts.Add(2 * time.Hour) // bookkeeping only
		assert.True(t, base.EqualContent(&other))
	})

	t.Run("different aqi differs", func(t *testing.T) {
		other := *base
		other.AQI = 43
		assert.False(t, base.EqualContent(&other))
	})

	t.Run("different pollutant value differs", func(t *testing.T) {
		other := *base
		other.Pollutants = map[string]float64{"pm25": 42, "o3": 13}
		assert.False(t, base.EqualContent(&other))
	})

	t.Run("missing pollutant differs", func(t *testing.T) {
		other := *base
		other.Pollutants = map[string]float64{"pm25": 42}
		assert.False(t, base.EqualContent(&other))
	})

	t.Run("nil never matches", func(t *testing.T) {
		assert.False(t, base.EqualContent(nil))
	})
}

func TestNormalize(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw := &provider.RawReading{
			StationIdx: "1437",
			Time:       "2026-08-25T13:47:12Z",
			Pollutants: map[string]float64{"pm25": 42, "pm10": 30},
		}
		fetchedAt := time.Date(2026, 8, 25, 13, 50, 0, 0, time.UTC)

		rd, err := Normalize(raw, fetchedAt)
		require.NoError(t, err)

		assert.Equal(t, "1437", rd.StationIdx)
		assert.True(t, rd.TS.Equal(time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)))
		assert.Equal(t, 42, rd.AQI)
		assert.Equal(t, "pm25", rd.Dominant)
		assert.Equal(t, fetchedAt, rd.FetchedAt)
	})

	t.Run("missing timestamp rejected", func(t *testing.T) {
		raw := &provider.RawReading{
			StationIdx: "1437",
			Pollutants: map[string]float64{"pm25": 42},
		}
		_, err := Normalize(raw, time.Now())
		require.Error(t, err)
		assert.True(t, pipeline.IsValidation(err))
	})

	t.Run("out of range sub-index rejected", func(t *testing.T) {
		raw := &provider.RawReading{
			StationIdx: "1437",
			Time:       "2026-08-25T13:00:00Z",
			Pollutants: map[string]float64{"pm25": 730},
		}
		_, err := Normalize(raw, time.Now())
		require.Error(t, err)
		assert.True(t, pipeline.IsValidation(err))
	})
}
