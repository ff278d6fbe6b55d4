package registry

import (
	"strings"
	"testing"

	"github.com/pyropy/idxshare/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptor(t *testing.T, content string) *model.ChunkDescriptor {
	t.Helper()

	d, err := model.NewChunkDescriptor(strings.NewReader(content), int64(len(content)), 4)
	require.NoError(t, err)

	return d
}

func TestShareAndLookup(t *testing.T) {
	r := New()
	d := descriptor(t, "hello world")

	assert.Equal(t, Accepted, r.Share("10.0.0.1", 4000, d, "hello.txt", "s1"))
	assert.Equal(t, Accepted, r.Share("10.0.0.2", 4000, d, "hello.txt", "s2"))
	assert.Equal(t, Accepted, r.Share("10.0.0.3", 4000, d, "other.txt", "s3"))

	hits := r.Lookup("hello.txt", d.FileHash())
	require.Len(t, hits, 2)
	assert.Equal(t, "10.0.0.1", hits[0].IP)
	assert.Equal(t, "10.0.0.2", hits[1].IP)

	assert.Empty(t, r.Lookup("hello.txt", "0000"))
	assert.Empty(t, r.Lookup("HELLO.txt", d.FileHash()))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 1, r.NumContentHashes())
}

func TestReShareIsIdempotent(t *testing.T) {
	r := New()
	d := descriptor(t, "abc")

	require.Equal(t, Accepted, r.Share("10.0.0.1", 4000, d, "a.txt", "s"))
	require.Equal(t, Accepted, r.Share("10.0.0.1", 4000, d, "a.txt", "s"))

	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.Lookup("a.txt", d.FileHash()), 1)
}

func TestReShareWithOtherSecretKeepsOriginal(t *testing.T) {
	r := New()
	d := descriptor(t, "abc")

	require.Equal(t, Accepted, r.Share("10.0.0.1", 4000, d, "a.txt", "s"))
	assert.Equal(t, SecretMismatch, r.Share("10.0.0.1", 4000, d, "a.txt", "other"))

	hits := r.Lookup("a.txt", d.FileHash())
	require.Len(t, hits, 1)
	assert.Equal(t, "s", hits[0].Secret)
}

func TestDrop(t *testing.T) {
	r := New()
	d := descriptor(t, "abc")
	require.Equal(t, Accepted, r.Share("10.0.0.1", 4000, d, "a.txt", "s"))

	assert.Equal(t, SecretMismatch, r.Drop("10.0.0.1", 4000, "a.txt", d.FileHash(), "wrong"))
	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.Lookup("a.txt", d.FileHash()), 1)

	assert.Equal(t, NotFound, r.Drop("10.0.0.1", 4001, "a.txt", d.FileHash(), "s"))
	assert.Equal(t, NotFound, r.Drop("10.0.0.1", 4000, "b.txt", d.FileHash(), "s"))

	assert.Equal(t, Removed, r.Drop("10.0.0.1", 4000, "a.txt", d.FileHash(), "s"))
	assert.Empty(t, r.Lookup("a.txt", d.FileHash()))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.NumContentHashes())

	assert.Equal(t, NotFound, r.Drop("10.0.0.1", 4000, "a.txt", d.FileHash(), "s"))
}

func TestDropKeepsOtherSharersOfSameContent(t *testing.T) {
	r := New()
	d := descriptor(t, "abc")
	require.Equal(t, Accepted, r.Share("10.0.0.1", 4000, d, "a.txt", "s"))
	require.Equal(t, Accepted, r.Share("10.0.0.2", 4000, d, "a.txt", "s"))

	require.Equal(t, Removed, r.Drop("10.0.0.1", 4000, "a.txt", d.FileHash(), "s"))

	hits := r.Lookup("a.txt", d.FileHash())
	require.Len(t, hits, 1)
	assert.Equal(t, "10.0.0.2", hits[0].IP)
	assert.Equal(t, 1, r.NumContentHashes())
}

func TestEmptyFileSharing(t *testing.T) {
	r := New()
	d := descriptor(t, "")

	require.Equal(t, Accepted, r.Share("127.0.0.1", 4000, d, "empty", "s"))

	hits := r.Lookup("empty", "")
	require.Len(t, hits, 1)
	assert.Equal(t, 4000, hits[0].Port)
	assert.Equal(t, Removed, r.Drop("127.0.0.1", 4000, "empty", "", "s"))
}

func TestSearch(t *testing.T) {
	r := New()
	song := descriptor(t, "song bytes")
	songCopy := descriptor(t, "song bytes")
	notes := descriptor(t, "notes")
	other := descriptor(t, "other song")

	require.Equal(t, Accepted, r.Share("10.0.0.1", 1, song, "Summer_Song.mp3", "s"))
	require.Equal(t, Accepted, r.Share("10.0.0.2", 1, songCopy, "summer_song.mp3", "s"))
	require.Equal(t, Accepted, r.Share("10.0.0.3", 1, other, "winter_song.MP3", "s"))
	require.Equal(t, Accepted, r.Share("10.0.0.4", 1, notes, "notes.txt", "s"))

	tests := []struct {
		name     string
		keywords []string
		maxHits  int
		want     []string
	}{
		{"case insensitive", []string{"SONG"}, 10, []string{"Summer_Song.mp3", "winter_song.MP3"}},
		{"all keywords", []string{"song", "summer"}, 10, []string{"Summer_Song.mp3"}},
		{"no match", []string{"song", "txt"}, 10, []string{}},
		{"max hits", []string{"song"}, 1, []string{"Summer_Song.mp3"}},
		{"no keywords", nil, 10, []string{"Summer_Song.mp3", "winter_song.MP3", "notes.txt"}},
		{"zero max hits", []string{"song"}, 0, []string{}},
		{"negative max hits", []string{"song"}, -1, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := r.Search(tt.keywords, tt.maxHits)
			got := []string{}
			for _, h := range hits {
				got = append(got, h.Filename)
			}
			assert.ElementsMatch(t, tt.want, got)
			assert.LessOrEqual(t, len(hits), len(tt.want))
		})
	}
}

func TestSearchOnePerContentHash(t *testing.T) {
	r := New()
	d := descriptor(t, "same")
	for i := 1; i <= 5; i++ {
		require.Equal(t, Accepted, r.Share("10.0.0.1", i, d, "same.bin", "s"))
	}

	assert.Len(t, r.Search([]string{"same"}, 10), 1)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "secret mismatch", SecretMismatch.String())
	assert.Equal(t, "unknown", Result(42).String())
}
