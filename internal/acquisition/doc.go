// Package acquisition materializes a video's audio track on local disk.
//
// Downloads land at <download_dir>/<key>.mp3 and double as the acquisition
// cache: a non-empty file there is reused unless a refresh is forced. Fetches
// write to a temp file and rename on success, and a per-key file lock keeps two
// processes from fetching the same video at once.
package acquisition
