package moderation

import (
	"bufio"
	"bytes"
	"chat-delivery/errors"
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed censored/*
var censoredFolder embed.FS

var ErrEmptyWords = fmt.Errorf("no censored words found: %w", errors.ErrInvalidPayload)

// CensoredData carries the result of the loading process including metadata for logging.
type CensoredData struct {
	Words     []string
	Languages []string
}

// LoadCensoredWords reads every embedded dictionary, one word per line,
// the file name giving the language ("fr.txt" -> "fr").
func LoadCensoredWords() (*CensoredData, error) {
	return loadAll(censoredFolder, "censored")
}

func loadAll(fsys fs.FS, path string) (*CensoredData, error) {
	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path+"/"+entry.Name())
		if err != nil {
			return nil, err
		}

		// Scanner handles \n and \r\n alike
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	return &CensoredData{Words: words, Languages: languages}, nil
}
