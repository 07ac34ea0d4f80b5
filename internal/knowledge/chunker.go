package knowledge

import (
	"regexp"
	"strings"
)

// Default chunking parameters
const (
	DefaultChunkSize = 800
	DefaultOverlap   = DefaultChunkSize / 5
)

// Chunk is one retrievable piece of a product document
type Chunk struct {
	Source  string `json:"source"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

// Section headers are upper-case titles framed by === or --- divider lines
var sectionHeader = regexp.MustCompile(`\n={3,}\n([A-Z\s&\-()]+)\n={3,}\n|\n-{3,}\n([A-Z\s&\-()]+)\n-{3,}\n`)

type section struct {
	title string
	body  string
}

// splitSections breaks a document on divider headers. Text before the first
// header becomes a section titled by its first line.
func splitSections(content string) []section {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	matches := sectionHeader.FindAllStringSubmatchIndex(content, -1)

	var out []section
	introEnd := len(content)
	if len(matches) > 0 {
		introEnd = matches[0][0]
	}
	if intro := strings.TrimSpace(content[:introEnd]); intro != "" {
		title, body, _ := strings.Cut(intro, "\n")
		if body = strings.TrimSpace(body); body != "" {
			out = append(out, section{title: strings.TrimSpace(title), body: body})
		}
	}

	for i, m := range matches {
		title := "Unknown Section"
		switch {
		case m[2] >= 0:
			title = content[m[2]:m[3]]
		case m[4] >= 0:
			title = content[m[4]:m[5]]
		}
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if body := strings.TrimSpace(content[m[1]:end]); body != "" {
			out = append(out, section{title: strings.TrimSpace(title), body: body})
		}
	}
	return out
}

// ChunkDocument splits content into titled chunks of about size characters.
// Long sections are cut on paragraph boundaries; each new chunk repeats the
// trailing paragraphs of the previous one up to overlap characters.
func ChunkDocument(content, source string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	sections := splitSections(content)
	if len(sections) == 0 && strings.TrimSpace(content) != "" {
		sections = []section{{title: source, body: strings.TrimSpace(content)}}
	}

	var chunks []Chunk
	emit := func(title string, paras []string) {
		chunks = append(chunks, Chunk{
			Source:  source,
			Section: title,
			Text:    title + "\n\n" + strings.Join(paras, "\n\n"),
		})
	}

	for _, sec := range sections {
		if len(sec.body) <= size {
			emit(sec.title, []string{sec.body})
			continue
		}

		var current []string
		currentSize := 0
		for _, para := range strings.Split(sec.body, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			if currentSize+len(para) > size && len(current) > 0 {
				emit(sec.title, current)
				current, currentSize = tail(current, overlap)
			}
			current = append(current, para)
			currentSize += len(para)
		}
		if len(current) > 0 {
			emit(sec.title, current)
		}
	}
	return chunks
}

// tail returns the trailing paragraphs that fit in limit characters
func tail(paras []string, limit int) ([]string, int) {
	total := 0
	start := len(paras)
	for i := len(paras) - 1; i >= 0; i-- {
		if total+len(paras[i]) > limit {
			break
		}
		total += len(paras[i])
		start = i
	}
	out := make([]string, len(paras)-start, len(paras)-start+1)
	copy(out, paras[start:])
	return out, total
}
