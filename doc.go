// Package ytcatalog keeps a catalog of YouTube videos in a local JSON file.
//
// Every record holds a video's title, its duration formatted as HH:MM:SS and
// its URL. Records are addressed by their 1-based position in the catalog.
//
// # Overview
//
// Open wires a catalog file to a metadata backend and returns a Session
// whose methods implement the catalog operations:
//
//   - Add: fetch a video's metadata and append it
//   - Update: replace the record at a position with freshly fetched metadata
//   - Delete: remove the record at a position
//   - Download: save the media of the record at a position with yt-dlp
//   - ImportPlaylist: append every available video of a playlist
//
// A failed fetch, a failed save or a cancelled context leaves the catalog
// file and the in-memory list unchanged.
//
// Quick Start
//
//	cfg, err := ytcatalog.LoadConfig("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	s, err := ytcatalog.Open(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	l, err := s.Add(ctx, "https://youtu.be/dQw4w9WgXcQ")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("%d. %s (%s)\n", l.Position, l.Video.Name, l.Video.Time)
//
// # Configuration
//
// Settings are loaded from three sources:
//
//  1. Environment variables (highest priority)
//  2. Config file (ytcatalog.yaml or ~/.config/ytcatalog/ytcatalog.yaml)
//  3. Default values (lowest priority)
//
// Environment variables use the YTCATALOG_ prefix, for example
// YTCATALOG_CATALOG_PATH, YTCATALOG_BACKEND, YTCATALOG_YTDLP_PATH,
// YTCATALOG_API_KEY and YTCATALOG_MAX_RETRIES.
//
// # Backends
//
// The "ytdlp" backend (default) runs the yt-dlp executable. The "native"
// backend talks to YouTube directly and needs no executable. The "api"
// backend uses YouTube Data API v3 and requires an API key. Downloads always
// use yt-dlp.
//
// Install yt-dlp: https://github.com/yt-dlp/yt-dlp
package ytcatalog
