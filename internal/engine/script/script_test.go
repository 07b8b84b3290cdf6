package script

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_Build(t *testing.T) {
	tests := []struct {
		name   string
		script string
		ok     bool
		code   string
	}{
		{"single station", "東京", true, "0"},
		{"one segment", "東京,東海道線,新大阪", true, "0"},
		{"trims tokens", " 東京 , 東海道線 ,新大阪 ", true, "0"},
		{"empty", "", false, "-1"},
		{"even tokens", "東京,東海道線", false, "-2"},
		{"empty token", "東京,,新大阪", false, "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil).NewRoute()
			status := r.Build(tt.script)
			assert.Equal(t, tt.ok, status.OK())
			assert.Equal(t, tt.code, status.String())
		})
	}
}

func TestRoute_BuildFailureKeepsPreviousRoute(t *testing.T) {
	r := New(nil).NewRoute()
	require.True(t, r.Build("東京,東海道線,名古屋").OK())

	assert.False(t, r.Build("東京,東海道線").OK())
	assert.Equal(t, "東京,東海道線,名古屋", r.Script())
}

func TestRoute_Catalog(t *testing.T) {
	e := New(NewCatalog([]string{"東京", "新大阪"}, []string{"東海道線"}))

	assert.True(t, e.NewRoute().Build("東京,東海道線,新大阪").OK())
	assert.Equal(t, "-4", e.NewRoute().Build("東京,東海道線,博多").String())
	assert.Equal(t, "-5", e.NewRoute().Build("東京,山陽線,新大阪").String())
}

func TestRoute_Accessors(t *testing.T) {
	r := New(nil).NewRoute()
	assert.Equal(t, 0, r.SegmentCount())
	assert.Equal(t, "", r.Departure())
	assert.Equal(t, "", r.Arrival())

	require.True(t, r.Build("東京,東海道線,名古屋,東海道線,新大阪").OK())
	assert.Equal(t, 2, r.SegmentCount())
	assert.Equal(t, "東京", r.Departure())
	assert.Equal(t, "新大阪", r.Arrival())
}

func TestRoute_AssignTail(t *testing.T) {
	e := New(nil)
	src := e.NewRoute()
	require.True(t, src.Build("東京,東海道線,名古屋,東海道線,京都,東海道線,新大阪").OK())

	tests := []struct {
		count int
		want  string
	}{
		{-1, "東京,東海道線,名古屋,東海道線,京都,東海道線,新大阪"},
		{0, "東京"},
		{1, "東京,東海道線,名古屋"},
		{2, "東京,東海道線,名古屋,東海道線,京都"},
		{3, "東京,東海道線,名古屋,東海道線,京都,東海道線,新大阪"},
		{10, "東京,東海道線,名古屋,東海道線,京都,東海道線,新大阪"},
		{math.MaxInt / 2, "東京,東海道線,名古屋,東海道線,京都,東海道線,新大阪"},
		{math.MaxInt/2 + 1, "東京,東海道線,名古屋,東海道線,京都,東海道線,新大阪"},
		{math.MaxInt, "東京,東海道線,名古屋,東海道線,京都,東海道線,新大阪"},
	}
	for _, tt := range tests {
		dst := e.NewRoute()
		require.NotPanics(t, func() { dst.AssignTail(src, tt.count) }, "count %d", tt.count)
		assert.Equal(t, tt.want, dst.Script(), "count %d", tt.count)
	}
}
