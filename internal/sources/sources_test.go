package sources_test

import (
	"errors"
	"testing"

	"trawler/internal/sources"
)

func TestResolveRecognizedShapes(t *testing.T) {
	cases := []struct {
		name        string
		url         string
		kind        sources.Kind
		canonicalID string
	}{
		{"playlist", "https://www.youtube.com/playlist?list=PLabc123", sources.KindPlaylist, "PLabc123"},
		{"handle", "https://www.youtube.com/@SomeCreator", sources.KindChannel, "@somecreator"},
		{"handle trailing slash", "https://youtube.com/@SomeCreator/", sources.KindChannel, "@somecreator"},
		{"channel id", "https://www.youtube.com/channel/UCabcDEF123", sources.KindChannel, "UCabcDEF123"},
		{"legacy custom", "https://www.youtube.com/c/SomeName", sources.KindChannel, "c/somename"},
		{"legacy user", "https://m.youtube.com/user/OldName", sources.KindChannel, "user/oldname"},
		{"http scheme", "http://youtube.com/channel/UCxyz", sources.KindChannel, "UCxyz"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := sources.Resolve(tc.url)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tc.url, err)
			}
			if src.Kind != tc.kind {
				t.Errorf("kind = %q, want %q", src.Kind, tc.kind)
			}
			if src.CanonicalID != tc.canonicalID {
				t.Errorf("canonical id = %q, want %q", src.CanonicalID, tc.canonicalID)
			}
		})
	}
}

func TestResolveRejectsInvalidURLs(t *testing.T) {
	cases := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"other host", "https://example.com/@creator"},
		{"ftp scheme", "ftp://www.youtube.com/@creator"},
		{"watch page", "https://www.youtube.com/watch?v=abc123"},
		{"playlist without list", "https://www.youtube.com/playlist"},
		{"bare handle marker", "https://www.youtube.com/@"},
		{"root path", "https://www.youtube.com/"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := sources.Resolve(tc.url); !errors.Is(err, sources.ErrInvalidSource) {
				t.Fatalf("Resolve(%q) = %v, want ErrInvalidSource", tc.url, err)
			}
		})
	}
}

func TestFeedURL(t *testing.T) {
	playlist, err := sources.Resolve("https://www.youtube.com/playlist?list=PLabc")
	if err != nil {
		t.Fatalf("Resolve playlist: %v", err)
	}
	feedURL, ok := sources.FeedURL(playlist)
	if !ok {
		t.Fatal("expected playlist to have a static feed URL")
	}
	if feedURL != "https://www.youtube.com/feeds/videos.xml?playlist_id=PLabc" {
		t.Fatalf("unexpected playlist feed URL: %s", feedURL)
	}

	channel, err := sources.Resolve("https://www.youtube.com/channel/UCabc")
	if err != nil {
		t.Fatalf("Resolve channel: %v", err)
	}
	feedURL, ok = sources.FeedURL(channel)
	if !ok {
		t.Fatal("expected UC channel to have a static feed URL")
	}
	if feedURL != "https://www.youtube.com/feeds/videos.xml?channel_id=UCabc" {
		t.Fatalf("unexpected channel feed URL: %s", feedURL)
	}

	handle, err := sources.Resolve("https://www.youtube.com/@creator")
	if err != nil {
		t.Fatalf("Resolve handle: %v", err)
	}
	if _, ok := sources.FeedURL(handle); ok {
		t.Fatal("handles have no static feed URL")
	}
}

func TestParseKind(t *testing.T) {
	if kind, ok := sources.ParseKind(" Channel "); !ok || kind != sources.KindChannel {
		t.Fatalf("ParseKind(Channel) = %q, %t", kind, ok)
	}
	if _, ok := sources.ParseKind("feed"); ok {
		t.Fatal("expected unknown kind to fail")
	}
}
