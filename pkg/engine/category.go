package engine

import (
	"path/filepath"
	"strings"
)

// Category labels shard packages so files of one kind land together,
// which keeps compression ratios and restore locality reasonable.
const (
	CategoryDoc     = "doc"
	CategoryImage   = "img"
	CategoryMedia   = "av"
	CategoryArchive = "arc"
	CategoryCode    = "src"
	CategoryMisc    = "misc"
)

var categoryByExt = map[string]string{
	".txt": CategoryDoc, ".md": CategoryDoc, ".pdf": CategoryDoc,
	".doc": CategoryDoc, ".docx": CategoryDoc, ".xls": CategoryDoc,
	".xlsx": CategoryDoc, ".ppt": CategoryDoc, ".pptx": CategoryDoc,
	".odt": CategoryDoc, ".rtf": CategoryDoc, ".csv": CategoryDoc,

	".jpg": CategoryImage, ".jpeg": CategoryImage, ".png": CategoryImage,
	".gif": CategoryImage, ".bmp": CategoryImage, ".tiff": CategoryImage,
	".webp": CategoryImage, ".svg": CategoryImage, ".heic": CategoryImage,

	".mp3": CategoryMedia, ".mp4": CategoryMedia, ".mkv": CategoryMedia,
	".avi": CategoryMedia, ".mov": CategoryMedia, ".flac": CategoryMedia,
	".wav": CategoryMedia, ".ogg": CategoryMedia, ".webm": CategoryMedia,

	".zip": CategoryArchive, ".tar": CategoryArchive, ".gz": CategoryArchive,
	".bz2": CategoryArchive, ".xz": CategoryArchive, ".7z": CategoryArchive,
	".rar": CategoryArchive, ".zst": CategoryArchive,

	".go": CategoryCode, ".c": CategoryCode, ".h": CategoryCode,
	".py": CategoryCode, ".js": CategoryCode, ".ts": CategoryCode,
	".java": CategoryCode, ".rs": CategoryCode, ".sh": CategoryCode,
	".json": CategoryCode, ".yaml": CategoryCode, ".yml": CategoryCode,
	".toml": CategoryCode, ".xml": CategoryCode, ".sql": CategoryCode,
}

// Categorize maps a source key to its package category by extension.
// Unknown extensions fall into the misc shard.
func Categorize(sourceKey string) string {
	ext := strings.ToLower(filepath.Ext(sourceKey))
	if cat, ok := categoryByExt[ext]; ok {
		return cat
	}
	return CategoryMisc
}
