package model

import (
	"testing"

	"VibeLock/core/player"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollaboratorListScan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  CollaboratorList
	}{
		{"nil", nil, nil},
		{"null", []byte("null"), nil},
		{"empty", "", nil},
		{"unsupported type", 42, nil},
		{"bytes", []byte(`[{"wallet":"0x01","share":60}]`), CollaboratorList{{Wallet: "0x01", Share: 60}}},
		{"string", `[{"wallet":"0x02","role":"producer","share":40}]`, CollaboratorList{{Wallet: "0x02", Role: "producer", Share: 40}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CollaboratorList
			require.NoError(t, got.Scan(tt.value))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollaboratorListValue(t *testing.T) {
	v, err := CollaboratorList(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = CollaboratorList{{Wallet: "0x01", Share: 100}}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"wallet":"0x01","share":100}]`, string(v.([]byte)))
}

func TestTrackPlayerConversion(t *testing.T) {
	p := player.Track{
		ID:            "0xa1",
		Title:         "Night Drive",
		Artist:        "Kora",
		MediaURL:      "https://cdn.example/a1-preview.mp3",
		PremiumAudio:  "s3://premium/a1.flac",
		ArtistID:      "kora",
		CoinSymbol:    "NIGHT",
		Duration:      201.5,
		Collaborators: []player.Collaborator{{Wallet: "0x09", Share: 25}},
	}

	row := TrackFromPlayer(p)
	assert.Equal(t, TrackStateNormal, row.State)
	assert.Equal(t, p, row.ToPlayer())
}
