package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/termites-go/mot"
)

func sampleTrails() []mot.SubjectTrail {
	identities := mot.NewIdentities(2, []string{"w", "s"}, 3)
	return []mot.SubjectTrail{
		{
			Identity: identities[0],
			Trail: mot.Trail{
				{Frame: 0, Time: 0, Box: mot.NewBBox(10, 10, 4, 4)},
				{Frame: 1, Time: 40 * time.Millisecond, Box: mot.NewBBox(12, 10, 4, 4)},
				{Frame: 2, Time: 80 * time.Millisecond, Box: mot.NewBBox(14, 10, 4, 4)},
			},
		},
		{
			Identity: identities[1],
			Trail: mot.Trail{
				{Frame: 0, Time: 0, Box: mot.NewBBox(40, 10, 4, 4)},
				{Frame: 2, Time: 80 * time.Millisecond, Box: mot.NewBBox(18, 10, 4, 4)},
			},
		},
	}
}

func sampleMeta(trails []mot.SubjectTrail) Meta {
	identities := make([]mot.Identity, len(trails))
	for i := range trails {
		identities[i] = trails[i].Identity
	}
	return NewMeta("colony-a", "footage/colony.mp4", 0, 0.5, mot.TrackingMethodCSRT, identities)
}

func TestFormatAndParseTime(t *testing.T) {
	d := time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond
	assert.Equal(t, "01:02:03.045", FormatTime(d))
	assert.Equal(t, "00:00:00.000", FormatTime(-time.Second))

	parsed, err := ParseTime("01:02:03.045")
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	parsed, err = ParseTime("00:00:07")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, parsed)

	for _, bad := range []string{"", "1:2", "aa:00:00", "00:61:00", "00:00:60.5"} {
		_, err := ParseTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestTrailCSVRoundTrip(t *testing.T) {
	trail := sampleTrails()[0].Trail
	var buf bytes.Buffer
	require.NoError(t, WriteTrailCSV(&buf, trail))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "frame,time,x,y,width,height", lines[0])
	assert.Equal(t, "1,00:00:00.040,12,10,4,4", lines[2])

	got, err := ReadTrailCSV(&buf, "w1-trail.csv")
	require.NoError(t, err)
	assert.Equal(t, trail, got)
}

func TestReadTrailCSVMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "frame,time,x,y,width\n0,00:00:00.000,1,1,1\n",
		"bad number":     "frame,time,x,y,width,height\n0,00:00:00.000,1,one,1,1\n",
		"bad time":       "frame,time,x,y,width,height\n0,soon,1,1,1,1\n",
		"short row":      "frame,time,x,y,width,height\n0,00:00:00.000,1\n",
		"unordered":      "frame,time,x,y,width,height\n3,00:00:00.000,1,1,1,1\n2,00:00:00.000,1,1,1,1\n",
	}
	for name, content := range cases {
		_, err := ReadTrailCSV(strings.NewReader(content), "t1-trail.csv")
		if assert.Error(t, err, name) {
			assert.True(t, errors.Is(err, mot.ErrMalformedTrail), name)
			assert.Contains(t, err.Error(), "t1-trail.csv", name)
		}
	}
	_, err := ReadTrailCSV(strings.NewReader("frame,time,x,y,width,height\n0,00:00:00.000,1,1,1,1\nx,00:00:00.000,1,1,1,1\n"), "t1-trail.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t1-trail.csv:3")
}

func TestTrailDirRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "colony-a")
	trails := sampleTrails()
	meta := sampleMeta(trails)

	require.NoError(t, NewTrailDir(dir, meta).WriteTrails(trails))
	for _, name := range []string{"w1-trail.csv", "s2-trail.csv", MetaFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	loaded, loadedMeta, err := LoadTrailDir(dir)
	require.NoError(t, err)
	assert.Equal(t, trails, loaded)
	assert.Equal(t, meta.RunID, loadedMeta.RunID)
	assert.Equal(t, 2, loadedMeta.NSubjects)
	assert.Equal(t, "csrt", loadedMeta.TrackingMethod)
	assert.True(t, meta.CreatedAt.Equal(loadedMeta.CreatedAt))
}

func TestLoadTrailDirWithoutMeta(t *testing.T) {
	dir := t.TempDir()
	trails := sampleTrails()
	for _, trail := range trails {
		var buf bytes.Buffer
		require.NoError(t, WriteTrailCSV(&buf, trail.Trail))
		require.NoError(t, os.WriteFile(filepath.Join(dir, TrailFileName(trail.Label())), buf.Bytes(), 0o644))
	}
	loaded, meta, err := LoadTrailDir(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	// Sorted by caste, then id
	assert.Equal(t, "s2", loaded[0].Label())
	assert.Equal(t, "w1", loaded[1].Label())
	assert.Equal(t, trails[1].Trail, loaded[0].Trail)
	assert.Equal(t, 2, meta.NSubjects)

	_, _, err = LoadTrailDir(t.TempDir())
	assert.True(t, errors.Is(err, mot.ErrMalformedTrail))
}

func TestLoadTrailDirMissingTrail(t *testing.T) {
	dir := t.TempDir()
	trails := sampleTrails()
	require.NoError(t, NewTrailDir(dir, sampleMeta(trails)).WriteTrails(trails))
	require.NoError(t, os.Remove(filepath.Join(dir, "s2-trail.csv")))
	_, _, err := LoadTrailDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s2-trail.csv")
}

func analyze(t *testing.T, trails []mot.SubjectTrail) *mot.Analysis {
	t.Helper()
	tracks := mot.NewTracks(trails)
	require.NoError(t, mot.NormalizeAll(tracks))
	analysis, err := mot.NewEncounterAnalyzer(10).Analyze(tracks)
	require.NoError(t, err)
	return analysis
}

func TestWriteExpanded(t *testing.T) {
	dir := t.TempDir()
	analysis := analyze(t, sampleTrails())
	require.NoError(t, WriteExpanded(dir, analysis))

	data, err := os.ReadFile(filepath.Join(dir, ExpandedDir, "w1-trail.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "frame,time,x,y,width,height,distance_to_s2,interaction_with_s2", lines[0])
	assert.Equal(t, "0,00:00:00.000,10,10,4,4,30.0,no-interaction", lines[1])
	// s2 has no record on frame 1
	assert.Equal(t, "1,00:00:00.040,12,10,4,4,,no-interaction", lines[2])
	assert.Equal(t, "2,00:00:00.080,14,10,4,4,4.0,encountering", lines[3])

	// Expanded files keep raw coordinates and can be analyzed again
	file, err := os.Open(filepath.Join(dir, ExpandedDir, "w1-trail.csv"))
	require.NoError(t, err)
	defer file.Close()
	trail, err := ReadTrailCSV(file, "expanded")
	require.NoError(t, err)
	assert.Equal(t, sampleTrails()[0].Trail, trail)

	encounters, err := os.ReadFile(filepath.Join(dir, ExpandedDir, EncountersFile))
	require.NoError(t, err)
	assert.Equal(t, "subject,other,start_frame,end_frame,frames,min_distance\nw1,s2,2,2,1,4.0\n", string(encounters))
}

func TestMultiWriter(t *testing.T) {
	calls := 0
	ok := mot.TrailWriterFunc(func([]mot.SubjectTrail) error {
		calls++
		return nil
	})
	failing := mot.TrailWriterFunc(func([]mot.SubjectTrail) error {
		calls++
		return errors.New("disk full")
	})
	err := MultiWriter(failing, nil, ok).WriteTrails(sampleTrails())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 2, calls)
	assert.NoError(t, MultiWriter(ok).WriteTrails(nil))
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "db", "experiments.db"))
	require.NoError(t, err)
	defer store.Close()

	trails := sampleTrails()
	meta := sampleMeta(trails)
	writer := store.Writer(ctx, meta)
	require.NoError(t, writer.WriteTrails(trails))
	// A retried finalize replaces the run
	require.NoError(t, writer.WriteTrails(trails))

	experiments, err := store.ListExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, experiments, 1)
	assert.Equal(t, meta.RunID, experiments[0].RunID)
	assert.Equal(t, "colony-a", experiments[0].Experiment)
	assert.Equal(t, 2, experiments[0].NSubjects)
	assert.Equal(t, 5, experiments[0].Records)
	assert.Equal(t, 0, experiments[0].Encounters)

	loaded, loadedMeta, err := store.LoadTrails(ctx, meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, trails, loaded)
	assert.Equal(t, meta.Subjects, loadedMeta.Subjects)
	assert.True(t, meta.CreatedAt.Equal(loadedMeta.CreatedAt))
	assert.InDelta(t, 0.5, loadedMeta.ResizeRatio, 1e-9)

	analysis := analyze(t, loaded)
	require.NoError(t, store.SaveEpisodes(ctx, meta.RunID, analysis.Threshold, analysis.Episodes()))
	experiments, err = store.ListExperiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, experiments[0].Encounters)

	assert.Error(t, store.SaveEpisodes(ctx, "missing", 10, nil))
	_, _, err = store.LoadTrails(ctx, "missing")
	assert.Error(t, err)
}

func TestStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "experiments.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	trails := sampleTrails()
	meta := sampleMeta(trails)
	require.NoError(t, store.SaveExperiment(ctx, meta, trails))
	require.NoError(t, store.Close())

	store, err = OpenStore(path)
	require.NoError(t, err)
	defer store.Close()
	loaded, _, err := store.LoadTrails(ctx, meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, trails, loaded)
}

func TestMetaColors(t *testing.T) {
	identities := mot.NewIdentities(3, nil, 11)
	meta := NewMeta("e", "v.mp4", 0, 1, mot.TrackingMethodKCF, identities)
	restored, err := meta.Identities()
	require.NoError(t, err)
	assert.Equal(t, identities, restored)

	meta.Subjects[0].Color = "red"
	_, err = meta.Identities()
	assert.Error(t, err)
}
