package mediatypes

// MediaKind classifies a file by its media category.
type MediaKind string

const (
	// KindPhoto represents a still image file.
	KindPhoto MediaKind = "photo"
	// KindVideo represents a video file.
	KindVideo MediaKind = "video"
	// KindAudio represents an audio file. Reserved: the pipeline does not
	// derive assets for audio yet, but the catalog can hold the entries.
	KindAudio MediaKind = "audio"
	// KindOther represents an unrecognized file type.
	KindOther MediaKind = "other"
)

// PhotoExtensions maps file extensions to whether they are supported photo formats.
var PhotoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// AudioExtensions maps file extensions to whether they are supported audio formats.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wav":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Photos
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",

	// Audio
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
}

// KindForExtension returns the MediaKind for a given file extension.
// The extension should be lowercase and include the leading dot (e.g. ".jpg").
// Returns KindOther if the extension is not recognized.
func KindForExtension(ext string) MediaKind {
	if PhotoExtensions[ext] {
		return KindPhoto
	}
	if VideoExtensions[ext] {
		return KindVideo
	}
	if AudioExtensions[ext] {
		return KindAudio
	}
	return KindOther
}

// MimeForExtension returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func MimeForExtension(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsMedia returns true if the extension represents a supported media file.
func IsMedia(ext string) bool {
	return KindForExtension(ext) != KindOther
}
