// Package ytdlp fetches remote video audio with yt-dlp and transcodes it with
// ffmpeg into the small mono MP3 the transcription API accepts.
//
// The command runner is injectable so tests can exercise argument building and
// cleanup without the binaries installed.
package ytdlp
