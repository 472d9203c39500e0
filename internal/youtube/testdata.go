package youtube

// SampleVideoOutput is a trimmed `yt-dlp -J --no-playlist` response.
const SampleVideoOutput = `{
  "_type": "video",
  "id": "dQw4w9WgXcQ",
  "title": "Rick Astley - Never Gonna Give You Up",
  "uploader": "Rick Astley",
  "duration": 212,
  "duration_string": "3:32",
  "webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
  "view_count": 1000000
}`

// SamplePlaylistOutput is a trimmed `yt-dlp -J --flat-playlist` response with
// one unavailable entry and one entry lacking metadata.
const SamplePlaylistOutput = `{
  "_type": "playlist",
  "id": "PLtest",
  "title": "Test Playlist",
  "uploader": "Test Channel",
  "entries": [
    {
      "_type": "url",
      "ie_key": "Youtube",
      "id": "dQw4w9WgXcQ",
      "url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
      "title": "Video 1",
      "duration": 212
    },
    null,
    {
      "_type": "url",
      "ie_key": "Youtube",
      "id": "xQw4w9WgXcZ",
      "url": "https://www.youtube.com/watch?v=xQw4w9WgXcZ",
      "title": "Video 2",
      "duration": 3725.5
    },
    {
      "_type": "url",
      "ie_key": "Youtube",
      "id": "aaaaaaaaaaa",
      "url": "https://www.youtube.com/watch?v=aaaaaaaaaaa"
    }
  ]
}`
