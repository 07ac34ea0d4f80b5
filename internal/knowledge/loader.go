package knowledge

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// LoadDir reads every .txt, .md, .html and .pdf document under dir and chunks it.
// Unreadable files are logged and skipped.
func LoadDir(dir string, size, overlap int, logger *zap.Logger) ([]Chunk, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("knowledge")

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md", ".html", ".htm", ".pdf":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk knowledge dir: %w", err)
	}
	sort.Strings(paths)

	var chunks []Chunk
	for _, path := range paths {
		text, err := readDocument(path)
		if err != nil {
			logger.Warn("Skipping document", zap.String("path", path), zap.Error(err))
			continue
		}
		name := filepath.Base(path)
		docChunks := ChunkDocument(text, name, size, overlap)
		logger.Info("Loaded document", zap.String("source", name), zap.Int("chunks", len(docChunks)))
		chunks = append(chunks, docChunks...)
	}
	logger.Info("Knowledge base ready", zap.Int("documents", len(paths)), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func readDocument(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return pdfText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return htmlText(string(data), path)
	default:
		return string(data), nil
	}
}

// htmlText extracts the readable article text, falling back to the plain
// body text when readability finds nothing.
func htmlText(html, path string) (string, error) {
	pageURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	if article, err := readability.FromReader(strings.NewReader(html), pageURL); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			if article.Title != "" && !strings.HasPrefix(text, article.Title) {
				text = article.Title + "\n" + text
			}
			return text, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, nav, aside, footer, iframe, noscript").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	doc.Find("body").Find("h1, h2, h3, p, li").Each(func(i int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return "", fmt.Errorf("no text in %s", filepath.Base(path))
	}
	return strings.Join(parts, "\n\n"), nil
}

// pdfText extracts the plain text of every page; pages are separated by a blank line
func pdfText(path string) (text string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()
	// the parser panics on some malformed content streams
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("malformed PDF %s: %v", filepath.Base(path), p)
		}
	}()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		b.WriteString(strings.TrimSpace(content))
		b.WriteString("\n\n")
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("no text in %s", filepath.Base(path))
	}
	return b.String(), nil
}
