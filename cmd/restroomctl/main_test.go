package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/restroom-finder/internal/config"
	"github.com/Clark-Hu/restroom-finder/internal/feed"
)

func TestImportSource(t *testing.T) {
	d := &deps{cfg: config.Config{FeedTimeoutSecs: 1}}

	src, err := importSource("restrooms.json", "", d)
	require.NoError(t, err)
	assert.Equal(t, feed.FileSource{Path: "restrooms.json"}, src)

	_, err = importSource("restrooms.json", "http://feed.local", d)
	assert.ErrorIs(t, err, ErrSourceRequired)

	_, err = importSource("", "", d)
	assert.ErrorIs(t, err, ErrSourceRequired)

	d.cfg.FeedURL = "http://feed.local"
	src, err = importSource("", "", d)
	require.NoError(t, err)
	assert.IsType(t, &feed.HTTPClient{}, src)
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"migrate", "import", "backfill-locations", "seq"}, names)
}
