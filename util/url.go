package util

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

func FilenameFromURL(url *url.URL) (string, error) {
	if url == nil {
		return "", ErrNoFilename
	}
	path := strings.Trim(url.Path, "/")
	if path == "" {
		return "", ErrNoFilename
	}
	pathElements := strings.Split(path, "/")
	filename := pathElements[len(pathElements)-1]
	if filename == "" {
		return "", ErrNoFilename
	}
	// Don't allow "filenames" that are just ".", "..", etc.
	if strings.ReplaceAll(filename, ".", "") == "" {
		return "", ErrNoFilename
	}
	return filename, nil
}

func FilenameFromURLString(s string) (string, error) {
	if parsedURL, err := url.Parse(s); err != nil {
		return "", err
	} else {
		return FilenameFromURL(parsedURL)
	}
}

var unsafeFilenameChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	"\x00", "",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "'",
	"<", "_",
	">", "_",
	"|", "_",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// SanitizeFilename makes s safe to use as a single path element. The result is empty if nothing usable remains.
func SanitizeFilename(s string) string {
	name := strings.TrimSpace(unsafeFilenameChars.Replace(s))
	if strings.ReplaceAll(name, ".", "") == "" {
		return ""
	}
	return name
}
